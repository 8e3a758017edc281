package types

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/vecingest/internal/models"
)

// Core interfaces
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type HealthChecker interface {
	Health(ctx context.Context) (ReadinessStatus, error)
}

type VectorStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, spec CollectionSpec) error
	Upsert(ctx context.Context, req UpsertRequest) error
	Close() error
}

type ReadinessStatus int

const (
	StatusUnknown ReadinessStatus = iota
	StatusReady
	StatusLoading
	StatusError
)

func (s ReadinessStatus) String() string {
	switch s {
	case StatusReady:
		return "ok"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceEuclid    Distance = "euclid"
	DistanceDot       Distance = "dot"
	DistanceManhattan Distance = "manhattan"
)

func ParseDistance(s string) (Distance, error) {
	switch d := Distance(strings.ToLower(strings.TrimSpace(s))); d {
	case DistanceCosine, DistanceEuclid, DistanceDot, DistanceManhattan:
		return d, nil
	}
	return "", fmt.Errorf("unknown distance %q", s)
}

type WriteOrdering string

const (
	OrderingWeak   WriteOrdering = "weak"
	OrderingMedium WriteOrdering = "medium"
	OrderingStrong WriteOrdering = "strong"
)

func ParseWriteOrdering(s string) (WriteOrdering, error) {
	switch o := WriteOrdering(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderingWeak, nil
	case OrderingWeak, OrderingMedium, OrderingStrong:
		return o, nil
	}
	return "", fmt.Errorf("unknown write ordering %q", s)
}

// CollectionSpec describes a collection at creation time. Dimension and
// distance have no usable defaults and must always be set.
type CollectionSpec struct {
	Name      string
	VectorDim int
	Distance  Distance
}

type UpsertRequest struct {
	Collection string
	ShardKey   string
	Ordering   WriteOrdering
	Points     []models.Point
}
