package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/minerva-reviews/review-engine/internal/filter"
)

// recordIDKey keeps the caller's record ID, since Qdrant point IDs must be
// UUIDs or integers.
const recordIDKey = "_recordId"

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	Host   string // default localhost
	Port   int    // gRPC port, default 6334
	APIKey string
}

// QdrantIndex maps namespaces to Qdrant collections.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	apiKey      string
}

// NewQdrantIndex dials Qdrant. The connection is lazy; the first call
// surfaces connectivity errors.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s: %w", addr, err)
	}

	return &QdrantIndex{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		apiKey:      cfg.APIKey,
	}, nil
}

func (q *QdrantIndex) withAuth(ctx context.Context) context.Context {
	if q.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.apiKey)
}

// Query implements Index.
func (q *QdrantIndex) Query(ctx context.Context, ns string, vec []float32, expr *filter.Expression, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	resp, err := q.points.Search(q.withAuth(ctx), &qdrant.SearchPoints{
		CollectionName: ns,
		Vector:         vec,
		Filter:         toQdrantFilter(expr),
		Limit:          uint64(topK),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search %s: %w", ns, err)
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		md := fromPayload(p.GetPayload())
		id, _ := md[recordIDKey].(string)
		delete(md, recordIDKey)
		if id == "" {
			id = pointIDString(p.GetId())
		}
		matches = append(matches, Match{ID: id, Score: p.GetScore(), Metadata: md})
	}
	return matches, nil
}

// Upsert implements Index. Point IDs are derived from record IDs.
func (q *QdrantIndex) Upsert(ctx context.Context, ns string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload := toPayload(r.Metadata)
		payload[recordIDKey] = toValue(r.ID)
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointUUID(r.ID)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Vector}},
			},
			Payload: payload,
		})
	}

	wait := true
	if _, err := q.points.Upsert(q.withAuth(ctx), &qdrant.UpsertPoints{
		CollectionName: ns,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", ns, err)
	}
	return nil
}

// Count implements Index.
func (q *QdrantIndex) Count(ctx context.Context, ns string) (int64, error) {
	exact := true
	resp, err := q.points.Count(q.withAuth(ctx), &qdrant.CountPoints{
		CollectionName: ns,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count %s: %w", ns, err)
	}
	return int64(resp.GetResult().GetCount()), nil
}

// EnsureCollection creates the namespace's collection with cosine distance
// if it does not exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, ns string, dimension int) error {
	ctx = q.withAuth(ctx)
	list, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == ns {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: ns,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", ns, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// toQdrantFilter translates an expression: single-condition clauses become
// must / must_not conditions, disjunctions become nested should filters.
func toQdrantFilter(expr *filter.Expression) *qdrant.Filter {
	if expr == nil {
		return nil
	}
	f := &qdrant.Filter{}
	for _, clause := range expr.Clauses {
		if len(clause.Any) == 1 {
			c := clause.Any[0]
			if c.Op == filter.OpNe {
				f.MustNot = append(f.MustNot, fieldMatch(c.Field, c.Values))
			} else {
				f.Must = append(f.Must, fieldMatch(c.Field, c.Values))
			}
			continue
		}

		nested := &qdrant.Filter{}
		for _, c := range clause.Any {
			cond := fieldMatch(c.Field, c.Values)
			if c.Op == filter.OpNe {
				cond = &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{
					Filter: &qdrant.Filter{MustNot: []*qdrant.Condition{cond}},
				}}
			}
			nested.Should = append(nested.Should, cond)
		}
		f.Must = append(f.Must, &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{Filter: nested}})
	}
	return f
}

// fieldMatch matches a keyword field, or any of several keywords. Qdrant
// applies keyword matches to each element of array payloads.
func fieldMatch(key string, values []string) *qdrant.Condition {
	match := &qdrant.Match{}
	if len(values) == 1 {
		match.MatchValue = &qdrant.Match_Keyword{Keyword: values[0]}
	} else {
		match.MatchValue = &qdrant.Match_Keywords{Keywords: &qdrant.RepeatedStrings{Strings: values}}
	}
	return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{
		Field: &qdrant.FieldCondition{Key: key, Match: match},
	}}
}

func pointUUID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func pointIDString(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func toPayload(md map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(md)+1)
	for k, v := range md {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *qdrant.Value {
	switch x := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: x}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: x}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(x)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: x}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: x}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(x)}}
	case []string:
		values := make([]*qdrant.Value, len(x))
		for i, s := range x {
			values[i] = toValue(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case []any:
		values := make([]*qdrant.Value, len(x))
		for i, item := range x {
			values[i] = toValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(x)}}
	}
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = fromValue(item)
		}
		return out
	case *qdrant.Value_StructValue:
		return fromPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}

var _ Index = (*QdrantIndex)(nil)
