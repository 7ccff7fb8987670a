// Package speech turns persisted quotes into narration audio files in the
// background. Command handlers submit a [Job] per new quote and move on; a
// single [Worker] goroutine drains jobs in submission order, synthesizes the
// text, and writes the artifact to disk. Delivery is at least once and the
// pipeline is idempotent: a job whose artifact already exists succeeds
// without a synthesis call.
package speech

import (
	"errors"
	"fmt"

	"github.com/olclarke/hermes/internal/store"
)

// Error kinds attached to a [Result]. Network errors cover the synthesis
// backend being unreachable or refusing the request; file errors cover
// writing the artifact to disk.
var (
	ErrSynthesisNetwork = errors.New("speech: synthesis request failed")
	ErrSynthesisFile    = errors.New("speech: artifact write failed")
)

// Job is one narration request. Jobs are immutable after submission.
type Job struct {
	QuoteID int64
	GuildID string
	OwnerID int64
	Text    string
}

// NewJob builds the narration job for a stored quote.
func NewJob(q store.Quote) Job {
	return Job{
		QuoteID: q.ID,
		GuildID: q.GuildID,
		OwnerID: q.UserID,
		Text:    q.Body,
	}
}

// ArtifactName returns the artifact base name for the job. The name is a
// pure function of the job's identity, which is what makes retried and
// duplicated submissions converge on the same file.
func (j Job) ArtifactName() string {
	return fmt.Sprintf("%d_%s_%d", j.QuoteID, j.GuildID, j.OwnerID)
}

// Result is the terminal outcome of a job, delivered exactly once per
// processed job through the worker's completion callback.
type Result struct {
	Job Job

	// Path is the absolute artifact path. Set on success.
	Path string

	// Err is nil on success, otherwise it wraps [ErrSynthesisNetwork] or
	// [ErrSynthesisFile].
	Err error
}
