package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTopicIDDeterministic(t *testing.T) {
	a := TopicID("8.3.24", "ru", "objects/array.html")
	b := TopicID("8.3.24", "ru", "objects/array.html")
	assert.Equal(t, a, b)
}

func TestTopicIDDistinguishesKeys(t *testing.T) {
	base := TopicID("8.3.24", "ru", "objects/array.html")
	assert.NotEqual(t, base, TopicID("8.3.25", "ru", "objects/array.html"))
	assert.NotEqual(t, base, TopicID("8.3.24", "en", "objects/array.html"))
	assert.NotEqual(t, base, TopicID("8.3.24", "ru", "objects/map.html"))
}

func TestTopicIDStableAcrossRandomKeys(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		version := rapid.StringMatching(`[0-9]+(\.[0-9]+){1,3}`).Draw(rt, "version")
		language := rapid.StringMatching(`[a-z]{2}`).Draw(rt, "language")
		path := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,48}`).Draw(rt, "path")

		first := TopicID(version, language, path)
		second := TopicID(version, language, path)
		if first != second {
			rt.Fatalf("TopicID not stable for (%q,%q,%q): %d != %d", version, language, path, first, second)
		}
		if first >= 1<<63 {
			rt.Fatalf("TopicID %d exceeds the signed 63-bit space", first)
		}
	})
}

func TestNewTopicDerivesIDFromKey(t *testing.T) {
	topic := NewTopic("Array", "body", "objects/array.html", "8.3.24", "ru")
	assert.Equal(t, TopicID("8.3.24", "ru", "objects/array.html"), topic.ID)
	assert.Equal(t, DomainHelp, topic.Domain)
}

func TestSnippetContentHashDedupes(t *testing.T) {
	a := Snippet{Title: "T", Code: "C", Description: "first"}
	b := Snippet{Title: "T", Code: "C", Description: "second"}
	assert.Equal(t, a.ContentHash(), b.ContentHash(), "description must not affect the content address")

	c := Snippet{Title: "T", Code: "C2"}
	assert.NotEqual(t, a.ContentHash(), c.ContentHash())
}

func TestSnippetSummaryTruncatesCode(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	s := Snippet{Title: "T", Description: "D", Code: string(long)}
	assert.LessOrEqual(t, len(s.Summary()), 320)
}
