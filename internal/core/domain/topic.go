package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Topic is a unit of indexed text derived from one converted document
// within an archive. Its identifier is a pure function of (version,
// language, relative path) — reindexing the same source yields the
// same identifier, which is what makes upserts idempotent.
type Topic struct {
	ID       uint64
	Title    string
	Body     string
	Path     string
	Version  string
	Language string
	Domain   string
}

// DomainHelp is the payload domain tag used for ingested help topics,
// distinguishing them from memory/snippet points sharing a collection.
const DomainHelp = "help"

// TopicID derives a stable 63-bit point id from the topic key:
// sha256("version|language|path"), first 14 hex chars, mod 2^63. Kept at
// 63 bits (not 64) so the id fits in a signed int64 payload field without
// sign ambiguity in the vector store.
func TopicID(version, language, relPath string) uint64 {
	key := fmt.Sprintf("%s|%s|%s", version, language, relPath)
	sum := sha256.Sum256([]byte(key))
	var v uint64
	// first 7 bytes (14 hex chars) of the digest.
	for i := 0; i < 7; i++ {
		v = v<<8 | uint64(sum[i])
	}
	return v % (1 << 63)
}

// NewTopic builds a Topic with its id derived from the key.
func NewTopic(title, body, relPath, version, language string) Topic {
	return Topic{
		ID:       TopicID(version, language, relPath),
		Title:    title,
		Body:     body,
		Path:     relPath,
		Version:  version,
		Language: language,
		Domain:   DomainHelp,
	}
}

// encodeTitleHash is used by snippet content-addressing; kept here so both
// topic and snippet ids share one derivation helper.
func encodeTitleHash(parts ...string) uint64 {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % (1 << 63)
}
