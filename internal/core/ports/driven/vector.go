package driven

import "context"

// VectorPoint is one upserted record: a stable id, its embedding, and an
// opaque payload (title, path, version, language, domain, ...).
type VectorPoint struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

// VectorHit is one similarity-search result.
type VectorHit struct {
	ID      uint64
	Payload map[string]any
	Score   float64
}

// VectorFilter restricts a search or scroll to points whose payload
// matches every non-empty field.
type VectorFilter struct {
	Domain     string
	Version    string
	Language   string
	PathPrefix string
}

// VectorIndex is the index writer's port onto the external vector
// store. Recreate is the only destructive operation and must be
// explicit — first-ingest or an operator-requested --recreate.
type VectorIndex interface {
	// EnsureCollection creates the collection if absent, or drops and
	// recreates it only when recreate is true. When recreate is false
	// and the stored dimension differs from dim, it returns an error
	// wrapping domain.ErrDimensionMismatch and leaves the collection
	// untouched.
	EnsureCollection(ctx context.Context, dim int, recreate bool) error

	// Upsert writes points in bounded chunks (the caller is responsible
	// for chunk sizing; implementations may further sub-chunk).
	Upsert(ctx context.Context, points []VectorPoint) error

	// Search returns the k nearest points to vector, optionally filtered.
	Search(ctx context.Context, vector []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// Scroll lists points matching filter without a similarity query,
	// used for listing and for rebuilding the lexical index cache.
	Scroll(ctx context.Context, filter VectorFilter, cursor string, limit int) (hits []VectorHit, nextCursor string, err error)

	// Delete removes points by id.
	Delete(ctx context.Context, ids []uint64) error

	// SnapshotCreate requests a point-in-time snapshot, returning its name.
	SnapshotCreate(ctx context.Context) (string, error)

	// SnapshotRestore restores the collection from a named snapshot.
	SnapshotRestore(ctx context.Context, name string) error
}
