package query

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// RuleConfig tunes the rule classifier.
type RuleConfig struct {
	// FollowUpMaxLength is the length (in runes) below which anaphoric text
	// is treated as a follow-up.
	FollowUpMaxLength int
	// MinKeywordLength is the shortest residual kept as recommendation keywords.
	MinKeywordLength int
}

// DefaultRuleConfig returns the production thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{FollowUpMaxLength: 60, MinKeywordLength: 4}
}

// RuleClassifier is a deterministic classifier driven by an ordered rule
// table. The first rule that accepts the text decides the type.
type RuleClassifier struct {
	cfg   RuleConfig
	rules []rule
}

// rule pairs a predicate with the extractor for its type. apply returns
// false to let the next rule try.
type rule struct {
	name  Type
	apply func(in *input) (Analysis, bool)
}

// input is the per-call view of the query text.
type input struct {
	raw   string // trimmed original text
	norm  string // lowercase, punctuation-free, space padded
	runes int
}

func newInput(text string) *input {
	text = strings.ToValidUTF8(text, "")
	raw := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	return &input{
		raw:   raw,
		norm:  " " + normalize(raw) + " ",
		runes: len([]rune(raw)),
	}
}

func (in *input) has(phrase string) bool {
	return strings.Contains(in.norm, " "+normalize(phrase)+" ")
}

func (in *input) hasAny(phrases []string) bool {
	for _, p := range phrases {
		if in.has(p) {
			return true
		}
	}
	return false
}

// NewRuleClassifier builds the classifier with cfg, filling zero fields
// from DefaultRuleConfig.
func NewRuleClassifier(cfg RuleConfig) *RuleClassifier {
	def := DefaultRuleConfig()
	if cfg.FollowUpMaxLength <= 0 {
		cfg.FollowUpMaxLength = def.FollowUpMaxLength
	}
	if cfg.MinKeywordLength <= 0 {
		cfg.MinKeywordLength = def.MinKeywordLength
	}

	c := &RuleClassifier{cfg: cfg}
	c.rules = []rule{
		{name: TypeRecommendation, apply: c.recommendation},
		{name: TypeComparison, apply: c.comparison},
		{name: TypeAuthorInfo, apply: c.authorInfo},
		{name: TypeBookInfo, apply: c.bookInfo},
		{name: TypeFollowUp, apply: c.followUp},
	}
	return c
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(_ context.Context, text string) Analysis {
	in := newInput(text)
	if in.raw == "" {
		return General()
	}
	for _, r := range c.rules {
		if a, ok := r.apply(in); ok {
			return a.Normalize()
		}
	}
	return General()
}

var (
	reGradeWord   = regexp.MustCompile(`(?i)\bgraded?\s*(?:of\s+|an?\s+)?([a-f][+-]?)(?:[^a-z0-9+-]|$)`)
	reGradeRated  = regexp.MustCompile(`\b([A-F][+-]?)[- ]rated\b`)
	reGradeSigned = regexp.MustCompile(`\b([A-F][+-])(?:[^A-Za-z0-9+-]|$)`)
	reGradeBare   = regexp.MustCompile(`(?:^|[^A-Za-z0-9'])([B-F])(?:[^A-Za-z0-9'+-]|$)`)

	reSimilar    = regexp.MustCompile(`(?i)\b(?:similar\s+to|books\s+like|something\s+like|anything\s+like|if\s+i\s+(?:liked|loved|enjoyed))\s+(.+)$`)
	reSimilarEnd = regexp.MustCompile(`(?i)[?!,;]|\.(?:\s|$)|\s+(?:but|because|which|that|where|what|please)\b`)

	reComparison    = regexp.MustCompile(`(?i)\b(?:compare|compared|comparing|comparison|difference|differences|better\s+than|which\s+(?:one\s+)?(?:is|was)\s+better|versus|vs)\b`)
	reQuoted        = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	reCompareSep    = regexp.MustCompile(`(?i)\bcompar(?:e|ing)\s+(.+?)\s+(?:with|to|against|versus|vs\.?)\s+(.+)$`)
	reCompareAnd    = regexp.MustCompile(`(?i)\bcompar(?:e|ing)\s+(.+)\s+and\s+(.+)$`)
	reDifference    = regexp.MustCompile(`(?i)\bdifferences?\s+between\s+(.+)\s+and\s+(.+)$`)
	reWhichBetter   = regexp.MustCompile(`(?i)\bwhich\s+(?:one\s+)?(?:is|was)\s+better\s*[,:]?\s*(.+)\s+or\s+(.+)$`)
	reVersus        = regexp.MustCompile(`(?i)^(.+?)\s+(?:vs\.?|versus|better\s+than|compared\s+(?:to|with))\s+(.+)$`)
	reLeadingAsk    = regexp.MustCompile(`(?i)^(?:is|was|would|should\s+i\s+read|do\s+you\s+think|how\s+does|how\s+do)\s+`)
	reTrailingAside = regexp.MustCompile(`(?i)\s+(?:in\s+terms\s+of|for\s+me|please)\b.*$`)

	reInquiryStart = regexp.MustCompile(`(?i)^(?:what|who|when|tell\s+me\s+(?:more\s+)?about|what's|whats)\b`)
	reQuotedBy     = regexp.MustCompile(`(?:"([^"]+)"|“([^”]+)”)\s+by\s+([^?.!,;]+)`)
	reBy           = regexp.MustCompile(`(?i)^(.+)\s+by\s+(.+)$`)
	reCharacterAsk = regexp.MustCompile(`(?i)^(?:who|what)\s+(?:is|was|are|were)\s+(?:the\s+)?(?:main\s+)?(?:hero|heroine|heroes|heroines|protagonists?|characters?|villains?|narrator|love\s+interest|leads?|couple)\s+(?:of|in|from)\s+(.+)$`)
	reAuthorAsk    = regexp.MustCompile(`(?i)^(?:who\s+is|tell\s+me\s+(?:more\s+)?about\s+(?:the\s+)?author|(?:what\s+)?about\s+the\s+author|author)\s+(.+)$`)
	reBooksBy      = regexp.MustCompile(`(?i)^(?:(?:what|which|any|show\s+me|other|more)\s+)*(?:books|novels|romances|titles)\s+(?:written\s+)?by\s+(.+)$`)
)

var (
	fillerRes  []*regexp.Regexp
	leadingRes []*regexp.Regexp // prefix at the start of the text
	inlineRes  []*regexp.Regexp // prepositional prefix anywhere in the text
)

func init() {
	for _, f := range fillerPhrases {
		fillerRes = append(fillerRes, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(f)+`\b`))
	}
	prefixes := append([]string{}, infoPrefixes...)
	prefixes = append(prefixes, "who is the author of", "tell me about the author of", "what about", "how about")
	sort.SliceStable(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		q := regexp.QuoteMeta(p)
		leadingRes = append(leadingRes, regexp.MustCompile(`(?i)^`+q+` `))
		if strings.HasSuffix(p, " of") || strings.HasSuffix(p, " about") || strings.HasSuffix(p, " on") {
			inlineRes = append(inlineRes, regexp.MustCompile(`(?i) `+q+` `))
		}
	}
}

func (c *RuleClassifier) recommendation(in *input) (Analysis, bool) {
	grade := extractGrade(in.raw)
	triggered := in.hasAny(recommendationTriggers)
	if !triggered && grade != "" && (in.hasAny(qualityWords) || in.has("romance") || in.has("romances")) {
		triggered = true
	}
	if !triggered {
		return Analysis{}, false
	}

	f := Filters{Grade: grade}
	residual := in.raw

	if m := reSimilar.FindStringSubmatchIndex(residual); m != nil {
		tail := residual[m[2]:m[3]]
		if end := reSimilarEnd.FindStringIndex(tail); end != nil {
			tail = tail[:end[0]]
		}
		ref := tail
		if q := reQuoted.FindStringSubmatch(tail); q != nil {
			ref = firstNonEmpty(q[1:]...)
		}
		ref = cleanTitle(stripFiller(ref))
		if ref != "" && !isVocabulary(ref) && !isStopPhrase(ref) {
			f.SimilarTo = ref
			residual = residual[:m[0]] + " " + residual[m[2]+len(tail):]
		}
	}

	for _, re := range []*regexp.Regexp{reGradeWord, reGradeRated, reGradeSigned} {
		residual = re.ReplaceAllString(residual, " ")
	}

	norm := " " + normalize(residual) + " "
	if sub, pos := firstVocabularyMatch(norm, subgenres); pos >= 0 {
		f.Subgenre = sub
		norm = strings.Replace(norm, " "+normalize(sub)+" ", " ", 1)
	}
	f.Tags = matchAllVocabulary(&norm, tropes)
	f.Keywords = c.keywords(norm)

	return Analysis{Type: TypeRecommendation, Filters: f}, true
}

// keywords keeps the discriminating remainder of a recommendation query.
func (c *RuleClassifier) keywords(norm string) string {
	var kept []string
	for _, w := range strings.Fields(norm) {
		w = strings.ReplaceAll(w, "'", "")
		if len(w) < 2 || keywordStopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	joined := strings.Join(kept, " ")
	if len(joined) < c.cfg.MinKeywordLength {
		return ""
	}
	return joined
}

func (c *RuleClassifier) comparison(in *input) (Analysis, bool) {
	if !reComparison.MatchString(in.raw) {
		return Analysis{}, false
	}
	return Analysis{Type: TypeComparison, Filters: Filters{Titles: extractComparisonTitles(in.raw)}}, true
}

func extractComparisonTitles(raw string) []string {
	if quoted := reQuoted.FindAllStringSubmatch(raw, -1); len(quoted) >= 2 {
		titles := make([]string, 0, len(quoted))
		for _, q := range quoted {
			titles = append(titles, firstNonEmpty(q[1:]...))
		}
		return titles
	}

	text := strings.TrimRight(raw, " ?!.")
	for _, re := range []*regexp.Regexp{reCompareSep, reDifference, reWhichBetter, reVersus, reCompareAnd} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a := reLeadingAsk.ReplaceAllString(strings.TrimSpace(m[1]), "")
		b := reTrailingAside.ReplaceAllString(strings.TrimSpace(m[2]), "")
		return []string{stripFiller(a), stripFiller(b)}
	}
	return nil
}

func (c *RuleClassifier) authorInfo(in *input) (Analysis, bool) {
	text := strings.TrimRight(in.raw, " ?!.")
	for _, re := range []*regexp.Regexp{reBooksBy, reAuthorAsk} {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := cleanPhrase(stripFiller(m[1]))
		if name == "" || isAnaphorOnly(name) || !hasUpper(name) || !looksLikeName(name) {
			return Analysis{}, false
		}
		return Analysis{Type: TypeAuthorInfo, Filters: Filters{Author: name}}, true
	}
	return Analysis{}, false
}

func (c *RuleClassifier) bookInfo(in *input) (Analysis, bool) {
	hasBy := in.has("by")
	inquiry := reInquiryStart.MatchString(in.raw)
	phrase := in.hasAny(infoPhrases)
	if !hasBy && !inquiry && !phrase {
		return Analysis{}, false
	}

	quoted := reQuoted.MatchString(in.raw)
	if c.isShortAnaphoric(in) && !quoted && !hasCapitalizedWord(in.raw) {
		return Analysis{}, false
	}

	var f Filters
	if m := reQuotedBy.FindStringSubmatch(in.raw); m != nil {
		f.Title = firstNonEmpty(m[1], m[2])
		f.Author = m[3]
	} else if q := reQuoted.FindStringSubmatch(in.raw); q != nil {
		f.Title = firstNonEmpty(q[1:]...)
	} else {
		text := stripFiller(strings.TrimRight(in.raw, " ?!."))
		if m := reCharacterAsk.FindStringSubmatch(text); m != nil {
			text = m[1]
		} else {
			text = stripPrefix(text)
		}
		text = stripFiller(text)
		if m := reBy.FindStringSubmatch(text); m != nil {
			f.Title, f.Author = m[1], m[2]
		} else {
			f.Title = text
		}
	}

	f.Title = cleanTitle(f.Title)
	f.Author = cleanPhrase(f.Author)
	if isAnaphorOnly(f.Title) || isStopPhrase(f.Title) {
		f.Title = ""
	}
	if isAnaphorOnly(f.Author) {
		f.Author = ""
	}
	return Analysis{Type: TypeBookInfo, Filters: f}, true
}

func (c *RuleClassifier) followUp(in *input) (Analysis, bool) {
	if !c.isShortAnaphoric(in) {
		return Analysis{}, false
	}
	return Analysis{Type: TypeFollowUp}, true
}

func (c *RuleClassifier) isShortAnaphoric(in *input) bool {
	return in.runes < c.cfg.FollowUpMaxLength && in.hasAny(anaphora)
}

func extractGrade(raw string) string {
	for _, re := range []*regexp.Regexp{reGradeWord, reGradeRated, reGradeSigned, reGradeBare} {
		if m := re.FindStringSubmatch(raw); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

// firstVocabularyMatch returns the entry occurring earliest in norm,
// preferring the longest entry at a given position.
func firstVocabularyMatch(norm string, vocab []string) (string, int) {
	best, bestPos := "", -1
	for _, v := range vocab {
		pos := strings.Index(norm, " "+normalize(v)+" ")
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos || (pos == bestPos && len(v) > len(best)) {
			best, bestPos = v, pos
		}
	}
	return best, bestPos
}

// matchAllVocabulary returns every entry found in *norm in order of
// appearance and removes each from *norm.
func matchAllVocabulary(norm *string, vocab []string) []string {
	var out []string
	for {
		v, pos := firstVocabularyMatch(*norm, vocab)
		if pos < 0 {
			return out
		}
		out = append(out, v)
		*norm = strings.Replace(*norm, " "+normalize(v)+" ", " ", 1)
	}
}

func isVocabulary(s string) bool {
	n := normalize(s)
	for _, list := range [][]string{subgenres, tropes} {
		for _, v := range list {
			if normalize(v) == n {
				return true
			}
		}
	}
	return false
}

func isStopPhrase(s string) bool {
	for _, w := range strings.Fields(normalize(s)) {
		if !keywordStopWords[w] {
			return false
		}
	}
	return true
}

func isAnaphorOnly(s string) bool {
	n := normalize(s)
	if n == "" {
		return false
	}
	for _, a := range anaphora {
		if n == a {
			return true
		}
	}
	return false
}

// looksLikeName accepts up to five words with no leading article and no
// preposition, so "Who is the heroine in Bet Me" is not read as a name.
func looksLikeName(s string) bool {
	words := strings.Fields(normalize(s))
	if len(words) == 0 || len(words) > 5 {
		return false
	}
	switch words[0] {
	case "the", "a", "an":
		return false
	}
	for _, w := range words {
		if nameBreakers[w] {
			return false
		}
	}
	return true
}

var nameBreakers = map[string]bool{
	"of": true, "in": true, "from": true, "on": true, "about": true, "with": true, "at": true, "for": true,
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// hasCapitalizedWord reports a capitalised word other than the first word
// and the pronoun I.
func hasCapitalizedWord(s string) bool {
	words := strings.Fields(s)
	for i, w := range words {
		if i == 0 {
			continue
		}
		w = strings.TrimLeft(w, `"'“(`)
		if w == "" || w == "I" || strings.HasPrefix(w, "I'") {
			continue
		}
		if unicode.IsUpper([]rune(w)[0]) {
			return true
		}
	}
	return false
}

func stripFiller(s string) string {
	for _, re := range fillerRes {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// stripPrefix removes a leading inquiry phrase. Phrases ending in a
// preposition ("summary of") may also appear mid-sentence, in which case
// everything up to and including them is dropped. Matching runs on s itself
// so cut positions stay on its rune boundaries.
func stripPrefix(s string) string {
	for _, re := range leadingRes {
		if loc := re.FindStringIndex(s); loc != nil {
			return strings.TrimSpace(s[loc[1]:])
		}
	}
	for _, re := range inlineRes {
		if loc := re.FindStringIndex(s); loc != nil {
			return strings.TrimSpace(s[loc[1]:])
		}
	}
	return s
}

// normalize lowercases s and replaces anything but letters, digits and
// apostrophes with single spaces.
func normalize(s string) string {
	s = strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}), " ")
}

func cleanPhrase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, ` ?!.,;:'"“”`)
}

func cleanTitle(s string) string {
	return cleanPhrase(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Classifier = (*RuleClassifier)(nil)
