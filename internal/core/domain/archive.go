package domain

import "time"

// ArchiveStatus is the lifecycle state of an archive record in the ingest cache.
type ArchiveStatus string

const (
	// ArchiveStatusIndexed means the archive's hash was ingested successfully.
	ArchiveStatusIndexed ArchiveStatus = "indexed"
	// ArchiveStatusFailed means the last attempt to ingest this archive failed.
	ArchiveStatusFailed ArchiveStatus = "failed"
)

// ArchiveRecord is the ingest cache's value type, keyed externally by the
// archive's content hash. An archive whose hash is present with status
// ArchiveStatusIndexed is never re-extracted unless the caller requests bypass.
type ArchiveRecord struct {
	Hash       string
	Status     ArchiveStatus
	IndexedAt  time.Time
	TopicCount int
	Version    string
	Language   string
}

// FailureRecord is one entry in the ingest failure log.
type FailureRecord struct {
	Path      string
	Reason    string
	Timestamp time.Time
}

// ArchiveTask is one unit of ingest work: a discovered archive with its
// derived (version, language) tags, prior to content-hash lookup.
type ArchiveTask struct {
	Path     string
	Version  string
	Language string
}
