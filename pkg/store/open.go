package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/vecingest/internal/types"
)

const (
	BackendQdrant   = "qdrant"
	BackendPgVector = "pgvector"
	BackendMilvus   = "milvus"
)

type OpenConfig struct {
	Backend string
	URL     string
	APIKey  string
}

// Open connects to the configured backend. An empty backend selects Qdrant.
func Open(ctx context.Context, config OpenConfig) (types.VectorStore, error) {
	switch strings.ToLower(config.Backend) {
	case "", BackendQdrant:
		return NewQdrant(QdrantConfig{URL: config.URL, APIKey: config.APIKey})
	case BackendPgVector:
		return NewPgVector(ctx, PgVectorConfig{ConnString: config.URL})
	case BackendMilvus:
		return NewMilvus(ctx, MilvusConfig{Address: config.URL, APIKey: config.APIKey})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.Backend)
}
