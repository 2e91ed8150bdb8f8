package backplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientProvider supplies a usable Redis handle. The backplane calls it
// exactly once per public operation and never retries: reconnect policy
// lives inside the provider, retry policy belongs to the caller.
type ClientProvider func() (redis.UniversalClient, error)

// JobTransform is a pure mapping applied to a JobRecord at a storage
// boundary. The on-store transform runs before a record is persisted or
// published; the on-read transform runs after a record is read back.
// External code uses these to inject or strip fields (typically large result
// payloads) without the backplane knowing why.
type JobTransform func(*JobRecord) *JobRecord

// Backplane is the shared coordination layer of the farm. It owns the worker
// membership hash, the per-job lifecycle state, the change notification
// channels, and the invocation blacklist check.
//
// Every public method is synchronous and performs one logical unit of work
// against a single Redis handle. Store errors propagate to the caller
// unmodified and are never retried internally. Start must be called before
// any other method.
type Backplane struct {
	config   Config
	source   string // Stable name of this backplane client, stamped onto published events
	onStore  JobTransform
	onRead   JobTransform
	provider ClientProvider

	mu       sync.Mutex
	identity string
	workers  map[string]*WorkerRecord
}

// New creates a Backplane. source names this client for event attribution.
// onStore and onRead may be nil, meaning identity transforms.
func New(config Config, source string, onStore, onRead JobTransform, provider ClientProvider) (*Backplane, error) {
	if provider == nil {
		return nil, fmt.Errorf("client provider cannot be nil")
	}
	return &Backplane{
		config:   config,
		source:   source,
		onStore:  onStore,
		onRead:   onRead,
		provider: provider,
		workers:  make(map[string]*WorkerRecord),
	}, nil
}

// Start performs the worker registry validation pass. It reads the entire
// worker hash, parses every entry, deletes entries that do not parse as a
// valid WorkerRecord, and publishes one remove event per eviction on the
// worker channel before returning. identity names the starting process and
// is recorded for event attribution.
//
// Membership data is written by the workers themselves and is untrusted
// here; evicting on load keeps one corrupt entry from poisoning every
// reader.
func (b *Backplane) Start(ctx context.Context, identity string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.identity = identity
	b.workers = make(map[string]*WorkerRecord)

	if b.config.WorkersHashName == "" {
		return nil
	}

	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	entries, err := rdb.HGetAll(ctx, b.config.WorkersHashName).Result()
	if err != nil {
		return fmt.Errorf("failed to read worker hash: %w", err)
	}

	for name, raw := range entries {
		worker, parseErr := parseWorkerRecord(raw)
		if parseErr != nil {
			if err := b.removeInvalidWorker(ctx, rdb, name, parseErr); err != nil {
				return err
			}
			continue
		}
		b.workers[name] = worker
	}

	return nil
}

// removeInvalidWorker deletes a malformed hash entry and announces the
// eviction. Runs with b.mu held.
func (b *Backplane) removeInvalidWorker(ctx context.Context, rdb redis.UniversalClient, name string, cause error) error {
	if err := rdb.HDel(ctx, b.config.WorkersHashName, name).Err(); err != nil {
		return fmt.Errorf("failed to evict worker %q: %w", name, err)
	}

	if b.config.WorkerChannel == "" {
		return nil
	}

	event := &ChangeEvent{
		Type:          ChangeTypeRemove,
		Source:        b.source,
		EffectiveAtMs: time.Now().UnixMilli(),
		Remove: &RemoveChange{
			Name:   name,
			Reason: cause.Error(),
		},
	}
	data, err := MarshalChange(event)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, b.config.WorkerChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish worker removal: %w", err)
	}
	return nil
}

// parseWorkerRecord deserializes and validates one worker hash entry.
func parseWorkerRecord(raw string) (*WorkerRecord, error) {
	var worker WorkerRecord
	if err := json.Unmarshal([]byte(raw), &worker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal worker record: %w", err)
	}
	if err := worker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker record: %w", err)
	}
	return &worker, nil
}

// Identity returns the identity recorded by Start, or the empty string
// before Start has run.
func (b *Backplane) Identity() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity
}

// GetWorkers returns the validated worker set from the Start pass, sorted by
// name. Evicted entries are never returned.
func (b *Backplane) GetWorkers() []*WorkerRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	workers := make([]*WorkerRecord, 0, len(b.workers))
	for _, w := range b.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].Name < workers[j].Name
	})
	return workers
}

// Prequeue records a newly submitted job: it writes the JobRecord under the
// job's key with the configured TTL, pushes the SubmissionEntry onto the
// prequeue list, and publishes a reset event carrying the stored record.
// The on-store transform is applied before the record is persisted and
// before it is published.
func (b *Backplane) Prequeue(ctx context.Context, submission *SubmissionEntry, job *JobRecord) error {
	if err := submission.Validate(); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job record: %w", err)
	}

	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	stored := b.applyOnStore(job)

	var expiresAtMs int64
	if b.config.JobKeyPrefix != "" {
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to marshal job record: %w", err)
		}
		if err := rdb.Set(ctx, b.JobKey(job.Name), data, b.config.JobTTL).Err(); err != nil {
			return fmt.Errorf("failed to write job record: %w", err)
		}
		expiresAtMs = time.Now().Add(b.config.JobTTL).UnixMilli()
	}

	if b.config.PrequeueListName != "" {
		data, err := json.Marshal(submission)
		if err != nil {
			return fmt.Errorf("failed to marshal submission: %w", err)
		}
		if err := rdb.LPush(ctx, b.config.PrequeueListName, data).Err(); err != nil {
			return fmt.Errorf("failed to push submission onto prequeue: %w", err)
		}
	}

	return b.publishReset(ctx, rdb, stored, expiresAtMs)
}

// Queueing announces that a job is moving from prequeued to dispatch-ready.
// The list move itself is performed by the scheduler; this call only
// publishes a reset event and verifies nothing, matching the scheduler
// contract that membership is reconciled from the JobRecord, not the event.
func (b *Backplane) Queueing(ctx context.Context, jobName string) error {
	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	job := b.applyOnStore(&JobRecord{Name: jobName, Stage: JobStageQueued})
	return b.publishReset(ctx, rdb, job, 0)
}

// RequeueDispatchedJob returns a claimed job to the dispatch-ready list:
// it removes the job from the dispatched hash, pushes the DispatchEntry back
// onto the queued list, and publishes a reset event. The two store effects
// are separate round trips with no cross-key atomicity; readers tolerate the
// window between them.
func (b *Backplane) RequeueDispatchedJob(ctx context.Context, entry *DispatchEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch entry: %w", err)
	}
	jobName := entry.Submission.JobName

	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	if b.config.DispatchedHashName != "" {
		if err := rdb.HDel(ctx, b.config.DispatchedHashName, jobName).Err(); err != nil {
			return fmt.Errorf("failed to remove job from dispatched hash: %w", err)
		}
	}

	if b.config.QueuedListName != "" {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal dispatch entry: %w", err)
		}
		if err := rdb.LPush(ctx, b.config.QueuedListName, data).Err(); err != nil {
			return fmt.Errorf("failed to push dispatch entry onto queued list: %w", err)
		}
	}

	job := b.applyOnStore(&JobRecord{Name: jobName, Stage: JobStageQueued})
	return b.publishReset(ctx, rdb, job, 0)
}

// CompleteJob clears a job's dispatched membership and nothing else. No
// event is published: completion is observed by collaborators polling the
// dispatched hash, which keeps the hot completion path to a single round
// trip. Removing an already-absent job is a safe no-op.
func (b *Backplane) CompleteJob(ctx context.Context, jobName string) error {
	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	if b.config.DispatchedHashName == "" {
		return nil
	}
	if err := rdb.HDel(ctx, b.config.DispatchedHashName, jobName).Err(); err != nil {
		return fmt.Errorf("failed to remove job from dispatched hash: %w", err)
	}
	return nil
}

// DeleteJob removes a job entirely: dispatched membership and the JobRecord
// key, then publishes a reset event carrying the deleted name. Both removals
// are safe no-ops when the job is already absent, and the event is published
// unconditionally.
func (b *Backplane) DeleteJob(ctx context.Context, jobName string) error {
	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}

	if b.config.DispatchedHashName != "" {
		if err := rdb.HDel(ctx, b.config.DispatchedHashName, jobName).Err(); err != nil {
			return fmt.Errorf("failed to remove job from dispatched hash: %w", err)
		}
	}

	if b.config.JobKeyPrefix != "" {
		if err := rdb.Del(ctx, b.JobKey(jobName)).Err(); err != nil {
			return fmt.Errorf("failed to delete job record: %w", err)
		}
	}

	job := b.applyOnStore(&JobRecord{Name: jobName})
	return b.publishReset(ctx, rdb, job, 0)
}

// GetJob retrieves a job's record by name, applying the on-read transform.
// Returns (nil, redis.Nil) if no record exists; use IsNotFound to check.
// A stored value that does not parse as a JobRecord is surfaced as an error,
// with no local recovery.
func (b *Backplane) GetJob(ctx context.Context, jobName string) (*JobRecord, error) {
	if b.config.JobKeyPrefix == "" {
		return nil, redis.Nil
	}

	rdb, err := b.provider()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store handle: %w", err)
	}

	raw, err := rdb.Get(ctx, b.JobKey(jobName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}

	var job JobRecord
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to deserialize job record: %w", err)
	}
	return b.applyOnRead(&job), nil
}

// IsBlacklisted reports whether the request's invocation has been
// blacklisted. A single existence check against the namespaced key; no
// mutation, no notification. With no blacklist prefix configured, or no
// invocation id on the request, the answer is false without a store call.
func (b *Backplane) IsBlacklisted(ctx context.Context, meta RequestMetadata) (bool, error) {
	if b.config.BlacklistPrefix == "" || meta.InvocationID == "" {
		return false, nil
	}

	rdb, err := b.provider()
	if err != nil {
		return false, fmt.Errorf("failed to acquire store handle: %w", err)
	}

	n, err := rdb.Exists(ctx, BlacklistKey(b.config.BlacklistPrefix, meta.InvocationID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// Ping verifies store connectivity. Useful for health checks.
func (b *Backplane) Ping(ctx context.Context) error {
	rdb, err := b.provider()
	if err != nil {
		return fmt.Errorf("failed to acquire store handle: %w", err)
	}
	return rdb.Ping(ctx).Err()
}

// publishReset publishes a reset event carrying job on the job's channel.
// Called after the store mutation has succeeded, never before, so
// subscribers are never told about state no reader can observe yet.
func (b *Backplane) publishReset(ctx context.Context, rdb redis.UniversalClient, job *JobRecord, expiresAtMs int64) error {
	if b.config.JobChannelPrefix == "" {
		return nil
	}

	event := &ChangeEvent{
		Type:          ChangeTypeReset,
		Source:        b.source,
		EffectiveAtMs: time.Now().UnixMilli(),
		Reset: &ResetChange{
			Job:         job,
			ExpiresAtMs: expiresAtMs,
		},
	}
	data, err := MarshalChange(event)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, b.JobChannel(job.Name), data).Err(); err != nil {
		return fmt.Errorf("failed to publish job change: %w", err)
	}
	return nil
}

func (b *Backplane) applyOnStore(job *JobRecord) *JobRecord {
	if b.onStore == nil {
		return job
	}
	return b.onStore(job)
}

func (b *Backplane) applyOnRead(job *JobRecord) *JobRecord {
	if b.onRead == nil {
		return job
	}
	return b.onRead(job)
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check if GetJob returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
