package session

import (
	"time"

	"github.com/lzww0608/resilientfile/chunk"
)

// Record is one session's durable state: the manifest needed to drive
// reconstruction, the set of shards known complete or permanently failed,
// and lifecycle bookkeeping.
type Record struct {
	SessionID string
	FileID    string
	Manifest  *chunk.Manifest

	// Completed and Failed are disjoint sets of sequence numbers.
	Completed map[uint32]struct{}
	Failed    map[uint32]struct{}

	Status Status

	// ReceiverAddr, when set, is reused by resume_transfer so the caller
	// need not re-supply the destination.
	ReceiverAddr string
	// FilePath is the source file's path, re-read on resume to re-split.
	FilePath string

	BytesCompleted uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResumeInfo is the subset of a Record needed to restart a transfer.
type ResumeInfo struct {
	SessionID    string
	FileID       string
	Manifest     *chunk.Manifest
	Completed    map[uint32]struct{}
	FilePath     string
	ReceiverAddr string
	CanResume    bool
}

// CanResume reports whether a session's status permits resume_transfer.
func CanResume(status Status) bool {
	return status.Kind == StatusPaused || status.Kind == StatusFailed
}

// NewRecord builds a fresh Record in StatusInitializing, ready to Save.
func NewRecord(sessionID, fileID string, manifest *chunk.Manifest) *Record {
	now := time.Now()
	return &Record{
		SessionID: sessionID,
		FileID:    fileID,
		Manifest:  manifest,
		Completed: make(map[uint32]struct{}),
		Failed:    make(map[uint32]struct{}),
		Status:    Status{Kind: StatusInitializing},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
