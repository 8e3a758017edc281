package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/xhad/vecingest/internal/types"
)

const DefaultMilvusAddress = "localhost:19530"

type MilvusConfig struct {
	Address string
	APIKey  string
}

// Milvus keeps one collection per target with an id, a float vector and a
// JSON payload field. Shard keys map to partitions.
type Milvus struct {
	config MilvusConfig
	client client.Client

	mu         sync.Mutex
	partitions map[string]bool
}

var _ types.VectorStore = (*Milvus)(nil)

func NewMilvus(ctx context.Context, config MilvusConfig) (*Milvus, error) {
	if config.Address == "" {
		config.Address = DefaultMilvusAddress
	}

	c, err := client.NewClient(ctx, client.Config{
		Address: config.Address,
		APIKey:  config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Milvus{
		config:     config,
		client:     c,
		partitions: make(map[string]bool),
	}, nil
}

func (m *Milvus) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to check if collection exists: %w", err)
	}
	if exists {
		if err := m.client.LoadCollection(ctx, name, false); err != nil {
			return false, fmt.Errorf("failed to load the collection into memory: %w", err)
		}
	}
	return exists, nil
}

func (m *Milvus) CreateCollection(ctx context.Context, spec types.CollectionSpec) error {
	if spec.VectorDim <= 0 {
		return ErrVectorConfigRequired
	}
	metric, err := milvusMetric(spec.Distance)
	if err != nil {
		return err
	}

	idField := entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).
		WithIsPrimaryKey(true).WithTypeParams(entity.TypeParamMaxLength, "64")
	payloadField := entity.NewField().WithName("payload").WithDataType(entity.FieldTypeJSON)
	vectorField := entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).
		WithDim(int64(spec.VectorDim))

	schema := entity.NewSchema().WithName(spec.Name).
		WithField(idField).
		WithField(payloadField).
		WithField(vectorField)

	if err := m.client.CreateCollection(ctx, schema, 1, client.WithConsistencyLevel(entity.ClBounded)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexHNSW(metric, 16, 200)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.CreateIndex(ctx, spec.Name, "vector", index, false, client.WithIndexName("vector_index")); err != nil {
		return fmt.Errorf("failed to set up index in database: %w", err)
	}

	if err := m.client.LoadCollection(ctx, spec.Name, false); err != nil {
		return fmt.Errorf("failed to load the collection into memory: %w", err)
	}
	return nil
}

func (m *Milvus) Upsert(ctx context.Context, req types.UpsertRequest) error {
	if len(req.Points) == 0 {
		return nil
	}

	partition, err := m.partition(ctx, req.Collection, req.ShardKey)
	if err != nil {
		return err
	}

	dim := len(req.Points[0].Vector)
	ids := make([]string, len(req.Points))
	vectors := make([][]float32, len(req.Points))
	payloads := make([][]byte, len(req.Points))
	for i, p := range req.Points {
		if len(p.Vector) != dim {
			return fmt.Errorf("point %s has dimension %d, batch has %d", p.ID, len(p.Vector), dim)
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload for point %s: %w", p.ID, err)
		}
		ids[i] = p.ID
		vectors[i] = p.Vector
		payloads[i] = payload
	}

	_, err = m.client.Upsert(ctx, req.Collection, partition,
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnJSONBytes("payload", payloads),
		entity.NewColumnFloatVector("vector", dim, vectors),
	)
	if err != nil {
		return err
	}

	// Milvus has no per-request write ordering; strong ordering maps to an
	// explicit flush.
	if req.Ordering == types.OrderingStrong {
		if err := m.client.Flush(ctx, req.Collection, false); err != nil {
			return fmt.Errorf("failed to flush collection: %w", err)
		}
	}
	return nil
}

func (m *Milvus) Close() error {
	return m.client.Close()
}

// partition returns the partition for a shard key, creating it on first use.
// An empty key selects the default partition.
func (m *Milvus) partition(ctx context.Context, collection, shardKey string) (string, error) {
	if shardKey == "" {
		return "", nil
	}
	name := milvusPartitionName(shardKey)
	key := collection + "/" + name

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partitions[key] {
		return name, nil
	}

	exists, err := m.client.HasPartition(ctx, collection, name)
	if err != nil {
		return "", fmt.Errorf("failed to check partition %s: %w", name, err)
	}
	if !exists {
		if err := m.client.CreatePartition(ctx, collection, name); err != nil {
			return "", fmt.Errorf("failed to create partition %s: %w", name, err)
		}
	}
	m.partitions[key] = true
	return name, nil
}

// milvusPartitionName keeps letters, digits and underscores, which is all
// Milvus accepts in a partition name.
func milvusPartitionName(shardKey string) string {
	var b strings.Builder
	b.WriteString("shard_")
	for _, r := range shardKey {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func milvusMetric(d types.Distance) (entity.MetricType, error) {
	switch d {
	case types.DistanceCosine:
		return entity.COSINE, nil
	case types.DistanceEuclid:
		return entity.L2, nil
	case types.DistanceDot:
		return entity.IP, nil
	case types.DistanceManhattan:
		return "", fmt.Errorf("%w: milvus has no %s metric for float vectors", ErrUnsupported, d)
	}
	return "", fmt.Errorf("%w: distance %q", ErrVectorConfigRequired, d)
}
