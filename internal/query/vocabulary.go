package query

// Subgenres and settings recognised in recommendation requests. Values are
// canonical lowercase; multi-word entries win over their single-word prefixes.
var subgenres = []string{
	"american historical",
	"european historical",
	"romantic suspense",
	"romantic comedy",
	"urban fantasy",
	"science fiction",
	"time travel",
	"young adult",
	"new adult",
	"small town",
	"chick lit",
	"civil war",
	"contemporary",
	"historical",
	"paranormal",
	"medieval",
	"regency",
	"victorian",
	"georgian",
	"western",
	"scottish",
	"highlander",
	"viking",
	"fantasy",
	"futuristic",
	"sci-fi",
	"gothic",
	"inspirational",
	"erotic",
	"military",
	"mystery",
	"steampunk",
	"suspense",
	"sports",
}

// Tropes recognised as tags.
var tropes = []string{
	"enemies to lovers",
	"friends to lovers",
	"second chance",
	"fake relationship",
	"fake dating",
	"arranged marriage",
	"marriage of convenience",
	"secret baby",
	"forced proximity",
	"grumpy sunshine",
	"only one bed",
	"slow burn",
	"forbidden love",
	"age gap",
	"amnesia",
	"reformed rake",
	"wallflower",
	"single parent",
	"workplace romance",
	"office romance",
	"opposites attract",
	"love triangle",
	"road trip",
	"matchmaking",
	"bodyguard",
	"royalty",
	"billionaire",
	"cowboy",
	"secret identity",
	"revenge",
	"unrequited love",
	"brother's best friend",
	"best friend's brother",
	"holiday",
	"christmas",
}

// Words that qualify a grade as a quality request ("B+ or better", "good A books").
var qualityWords = []string{
	"good", "great", "best", "top", "excellent", "highly rated", "top rated",
	"well reviewed", "favorite", "favourite", "better",
}

var recommendationTriggers = []string{
	"recommend", "suggest", "looking for", "any good", "any great", "what are some",
	"similar to", "books like", "something like", "if i liked", "if i loved",
	"if i enjoyed", "can you find", "can you list", "find me", "list of",
	"books about", "books with", "books that", "books for", "romances with",
	"romances about", "novels about",
}

var infoPhrases = []string{
	"information about", "information on", "summary of", "review of", "plot of",
	"details about", "know about", "tell me about", "tell me more about",
}

// Leading phrases removed before extracting a title from a book_info query.
var infoPrefixes = []string{
	"can you tell me about", "could you tell me about", "tell me more about", "tell me about",
	"what do you think about", "what do you think of", "what do you know about",
	"give me information about", "give me information on", "information about", "information on",
	"what is the plot of", "what's the plot of", "what is the summary of", "what is the review of",
	"what was the grade for", "what grade did", "what is the grade of",
	"do you have a review of", "do you have any information on", "do you have",
	"details about", "summary of", "review of", "plot of",
	"who wrote", "what is", "what's", "whats", "what was", "when was", "when is", "who is",
}

// Filler stripped anywhere before title/author matching.
var fillerPhrases = []string{
	"the book called", "the novel called", "a book called", "the book", "the novel",
	"novel", "please", "for me", "kindly",
}

var anaphora = []string{"it", "this", "that", "they", "he", "she", "the book"}

// Words never kept as recommendation keywords.
var keywordStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "me": true, "my": true, "i": true, "im": true,
	"some": true, "any": true, "few": true, "good": true, "great": true, "best": true,
	"top": true, "excellent": true, "recommend": true, "recommendation": true,
	"recommendations": true, "suggest": true, "suggestion": true, "suggestions": true,
	"looking": true, "for": true, "find": true, "list": true, "of": true, "can": true,
	"could": true, "would": true, "you": true, "please": true, "give": true, "show": true,
	"what": true, "are": true, "there": true, "is": true, "that": true, "with": true,
	"about": true, "book": true, "books": true, "novel": true, "novels": true,
	"romance": true, "romances": true, "read": true, "reads": true, "story": true,
	"stories": true, "similar": true, "to": true, "like": true, "liked": true,
	"loved": true, "enjoyed": true, "if": true, "want": true, "need": true, "rated": true,
	"highly": true, "grade": true, "graded": true, "and": true, "or": true, "in": true,
	"on": true, "set": true, "which": true, "really": true, "very": true,
	"something": true, "other": true, "more": true, "titles": true, "get": true,
	"do": true, "have": true, "has": true, "be": true, "it": true, "they": true,
	"them": true, "better": true, "favorite": true, "favourite": true, "well": true,
	"reviewed": true, "new": true, "where": true, "who": true, "by": true,
}
