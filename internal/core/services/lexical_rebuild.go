package services

import (
	"context"
	"fmt"

	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
	"github.com/mussolene/1c-hbk-helper/internal/core/ports/driven"
	"github.com/mussolene/1c-hbk-helper/internal/logger"
)

// payloadScroller is the slice of the index writer the rebuild needs.
type payloadScroller interface {
	Scroll(ctx context.Context, filter driven.VectorFilter, cursor string, limit int) ([]driven.VectorHit, string, error)
}

// RebuildLexical repopulates the keyword index from a full scroll of the
// vector store. The keyword index is a derived cache: when it is empty
// while the store has points (fresh container, deleted index file),
// this restores it without re-extracting anything.
func RebuildLexical(ctx context.Context, store payloadScroller, lex driven.LexicalIndex) (int, error) {
	cursor := ""
	rebuilt := 0
	for {
		hits, next, err := store.Scroll(ctx, driven.VectorFilter{}, cursor, 500)
		if err != nil {
			return rebuilt, fmt.Errorf("scrolling vector store for lexical rebuild: %w", err)
		}
		for _, h := range hits {
			t := topicFromPayload(h.Payload)
			if t.ID == 0 {
				t.ID = h.ID
			}
			if t.Title == "" && t.Body == "" {
				continue
			}
			if err := lex.Index(ctx, t); err != nil {
				logger.Warn("lexical rebuild: indexing %s: %v", t.Path, err)
				continue
			}
			rebuilt++
		}
		if next == "" {
			return rebuilt, nil
		}
		cursor = next
	}
}

// StaleLexical reports whether the keyword index should be rebuilt: it
// is empty while the vector store has points.
func StaleLexical(ctx context.Context, store payloadScroller, lex driven.LexicalIndex) bool {
	if lex.Count() > 0 {
		return false
	}
	hits, _, err := store.Scroll(ctx, driven.VectorFilter{Domain: domain.DomainHelp}, "", 1)
	if err != nil {
		return false
	}
	return len(hits) > 0
}
