package domain

import "fmt"

// SnippetClass distinguishes runnable code from prose reference material.
type SnippetClass string

const (
	SnippetClassSnippet   SnippetClass = "snippet"
	SnippetClassReference SnippetClass = "reference"
)

// Snippet is a code+description pair contributed by a user or loaded from
// the snippets directory at startup. Snippets are content-addressed by a
// hash of title+code so re-ingesting the same snippet updates rather than
// duplicates the long-tier point.
type Snippet struct {
	Title       string
	Description string
	Code        string
	Domain      MemoryDomain
	Class       SnippetClass
}

// ContentHash derives the snippet's stable point id from title+code.
// The id is 63-bit so it fits the same vector-store id space as topics.
func (s Snippet) ContentHash() uint64 {
	return encodeTitleHash(s.Title, s.Code)
}

// Summary formats the text handed to the embedding dispatcher for a
// curated snippet's long-tier point.
func (s Snippet) Summary() string {
	body := s.Code
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("%s | %s | %s", s.Title, s.Description, body)
}
