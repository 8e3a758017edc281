package store

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
)

const DefaultQdrantURL = "http://localhost:6334"

type QdrantConfig struct {
	URL    string // gRPC endpoint, e.g. http://localhost:6334
	APIKey string
}

type Qdrant struct {
	config QdrantConfig
	client *qdrant.Client
}

var _ types.VectorStore = (*Qdrant)(nil)

func NewQdrant(config QdrantConfig) (*Qdrant, error) {
	if config.URL == "" {
		config.URL = DefaultQdrantURL
	}
	host, port, useTLS, err := splitQdrantURL(config.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: config.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Qdrant{
		config: config,
		client: client,
	}, nil
}

func (q *Qdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	return q.client.CollectionExists(ctx, name)
}

func (q *Qdrant) CreateCollection(ctx context.Context, spec types.CollectionSpec) error {
	if spec.VectorDim <= 0 {
		return ErrVectorConfigRequired
	}
	distance, err := qdrantDistance(spec.Distance)
	if err != nil {
		return err
	}

	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(spec.VectorDim),
					Distance: distance,
				},
			},
		},
	})
}

func (q *Qdrant) Upsert(ctx context.Context, req types.UpsertRequest) error {
	points := make([]*qdrant.PointStruct, len(req.Points))
	for i, p := range req.Points {
		points[i] = qdrantPoint(p)
	}

	wait := true
	upsert := &qdrant.UpsertPoints{
		CollectionName: req.Collection,
		Wait:           &wait,
		Points:         points,
		Ordering:       &qdrant.WriteOrdering{Type: qdrantOrdering(req.Ordering)},
	}
	if req.ShardKey != "" {
		upsert.ShardKeySelector = &qdrant.ShardKeySelector{
			ShardKeys: []*qdrant.ShardKey{
				{Key: &qdrant.ShardKey_Keyword{Keyword: req.ShardKey}},
			},
		}
	}

	res, err := q.client.Upsert(ctx, upsert)
	if err != nil {
		return err
	}

	switch res.GetStatus() {
	case qdrant.UpdateStatus_Completed, qdrant.UpdateStatus_Acknowledged:
		return nil
	}
	return fmt.Errorf("upsert finished with status %s", res.GetStatus())
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

func qdrantPoint(p models.Point) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: p.Vector},
			},
		},
		Payload: qdrantPayload(p.Payload),
	}
}

// qdrantPayload converts scalar payload values. Anything else is stored as
// its string form.
func qdrantPayload(payload map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case int:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case nil:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
		default:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(val)}}
		}
	}
	return out
}

func qdrantDistance(d types.Distance) (qdrant.Distance, error) {
	switch d {
	case types.DistanceCosine:
		return qdrant.Distance_Cosine, nil
	case types.DistanceEuclid:
		return qdrant.Distance_Euclid, nil
	case types.DistanceDot:
		return qdrant.Distance_Dot, nil
	case types.DistanceManhattan:
		return qdrant.Distance_Manhattan, nil
	}
	return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: distance %q", ErrVectorConfigRequired, d)
}

func qdrantOrdering(o types.WriteOrdering) qdrant.WriteOrderingType {
	switch o {
	case types.OrderingMedium:
		return qdrant.WriteOrderingType_Medium
	case types.OrderingStrong:
		return qdrant.WriteOrderingType_Strong
	default:
		return qdrant.WriteOrderingType_Weak
	}
}

func splitQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant url %q", raw)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		host, portStr = u.Host, "6334"
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q", portStr)
	}
	return host, port, u.Scheme == "https", nil
}
