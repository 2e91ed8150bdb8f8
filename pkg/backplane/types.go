// Package backplane provides the shared Redis coordination layer for a drey
// build farm. Every cluster participant (submitters, the scheduler, workers,
// the CLI) reads and writes job and worker state through a Backplane instance.
//
// All authoritative state lives in Redis; the backplane itself holds no state
// beyond the worker set cached by Start. Keys and channels are named entirely
// by the Config supplied at construction, so multiple farms can share one
// Redis deployment.
package backplane

import (
	"fmt"

	"github.com/google/uuid"
)

// WorkerRecord describes one registered worker in the farm.
// Records are written by the workers' own heartbeat loops; the backplane only
// validates and evicts them, it never writes them.
type WorkerRecord struct {
	Name        string `json:"name"`                   // Worker endpoint, e.g. "builder-3:8981"
	StartedAtMs int64  `json:"started_at_ms"`          // Unix millis when the worker came up
	ExecSlots   int    `json:"exec_slots,omitempty"`   // Concurrent actions the worker accepts
	Version     string `json:"version,omitempty"`      // Worker build version, informational
}

// JobRecord is the canonical mutable status record for one unit of work,
// addressed by job name. It is overwritten in place on every lifecycle
// transition and expires from the store after the configured TTL.
type JobRecord struct {
	Name        string   `json:"name"`                 // Globally unique, assigned once by the submitter
	Stage       JobStage `json:"stage,omitempty"`      // Current lifecycle position
	Worker      string   `json:"worker,omitempty"`     // Endpoint of the worker executing the job, if any
	Result      []byte   `json:"result,omitempty"`     // Opaque result payload; may be stripped by transforms
	CreatedAtMs int64    `json:"created_at_ms,omitempty"`
}

// JobStage is the lifecycle position recorded in a JobRecord.
type JobStage string

const (
	// JobStagePrequeued means the job has been submitted but not yet
	// examined by the scheduler.
	JobStagePrequeued JobStage = "prequeued"

	// JobStageQueued means the job is on the dispatch-ready list, available
	// for a worker to claim.
	JobStageQueued JobStage = "queued"

	// JobStageDispatched means a worker has claimed the job.
	JobStageDispatched JobStage = "dispatched"

	// JobStageCompleted means execution finished; the record remains
	// addressable until its TTL expires.
	JobStageCompleted JobStage = "completed"
)

// RequestMetadata identifies the client request that caused a submission.
// Carried on SubmissionEntry and used for invocation blacklist checks.
type RequestMetadata struct {
	ToolName                string `json:"tool_name,omitempty"`
	ActionID                string `json:"action_id,omitempty"`
	InvocationID            string `json:"invocation_id,omitempty"`
	CorrelatedInvocationsID string `json:"correlated_invocations_id,omitempty"`
}

// SubmissionEntry records why a job was submitted. It is pushed once onto the
// prequeue list at submission time and never mutated afterwards.
type SubmissionEntry struct {
	JobName         string          `json:"job_name"`
	ActionDigest    string          `json:"action_digest,omitempty"`
	SkipCacheLookup bool            `json:"skip_cache_lookup,omitempty"`
	Metadata        RequestMetadata `json:"metadata,omitempty"`
	SubmittedAtMs   int64           `json:"submitted_at_ms,omitempty"`
}

// DispatchEntry wraps a SubmissionEntry with dispatch metadata. It is the
// unit moved between the dispatch-ready list and the dispatched hash.
type DispatchEntry struct {
	Submission      SubmissionEntry   `json:"submission"`
	Platform        map[string]string `json:"platform,omitempty"` // Resource requirements, e.g. {"cores": "4"}
	RequeueAttempts int               `json:"requeue_attempts,omitempty"`
}

// Validate checks that the WorkerRecord is usable as a membership entry.
// Entries that fail this check are evicted from the worker hash on Start.
func (w *WorkerRecord) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("worker name cannot be empty")
	}
	if w.ExecSlots < 0 {
		return fmt.Errorf("invalid exec_slots: must be >= 0, got %d", w.ExecSlots)
	}
	return nil
}

// Validate checks that the JobRecord has valid field values.
func (j *JobRecord) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if j.Stage != "" {
		if err := j.Stage.Validate(); err != nil {
			return fmt.Errorf("invalid stage: %w", err)
		}
	}
	return nil
}

// Validate checks if the JobStage is a valid enum value.
func (s JobStage) Validate() error {
	switch s {
	case JobStagePrequeued, JobStageQueued, JobStageDispatched, JobStageCompleted:
		return nil
	default:
		return fmt.Errorf("unknown job stage: %q", s)
	}
}

// Validate checks that the SubmissionEntry has valid field values.
// The invocation id, when present, must be a UUID so blacklist keys stay
// well-formed.
func (e *SubmissionEntry) Validate() error {
	if e.JobName == "" {
		return fmt.Errorf("submission job name cannot be empty")
	}
	if e.Metadata.InvocationID != "" && !isValidUUID(e.Metadata.InvocationID) {
		return fmt.Errorf("invalid invocation ID: not a valid UUID")
	}
	return nil
}

// Validate checks that the DispatchEntry has valid field values.
func (e *DispatchEntry) Validate() error {
	if err := e.Submission.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}
	if e.RequeueAttempts < 0 {
		return fmt.Errorf("invalid requeue_attempts: must be >= 0, got %d", e.RequeueAttempts)
	}
	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
