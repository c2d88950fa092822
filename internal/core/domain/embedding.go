package domain

// EmbeddingRequest is the transient unit of work passed to a backend.
// The response vector count must equal len(Inputs); a mismatch is a
// retriable error handled inside the dispatcher.
type EmbeddingRequest struct {
	Inputs    []string
	Dimension int
	Backend   string
}

// Backend name constants. Status output keeps "no embedding backend"
// (placeholder) distinct from the deterministic backend, which is a
// real, if shallow, embedding source.
const (
	BackendLocal        = "local"
	BackendRemote       = "remote"
	BackendDeterministic = "deterministic"
	BackendPlaceholder  = "placeholder"
)

// SearchResult is a ranked topic summary returned by semantic or keyword search.
type SearchResult struct {
	Topic Topic
	Score float64
}

// SearchFilter narrows semantic_search to a version/language/path-prefix subset.
type SearchFilter struct {
	Version    string
	Language   string
	PathPrefix string
}
