package backplane

import "time"

// Config names every Redis key and channel the backplane touches, plus the
// job record TTL. An empty name disables the corresponding feature path
// rather than erroring: an operation simply skips the store effect or
// publish that the missing name would have addressed.
type Config struct {
	// WorkersHashName is the hash of worker name -> serialized WorkerRecord.
	WorkersHashName string `yaml:"workers_hash_name"`

	// WorkerChannel is the cluster-wide channel for worker membership events.
	WorkerChannel string `yaml:"worker_channel"`

	// JobKeyPrefix prefixes the per-job record key: {prefix}:{job_name}.
	JobKeyPrefix string `yaml:"job_key_prefix"`

	// JobChannelPrefix prefixes the per-job event channel: {prefix}:{job_name}.
	JobChannelPrefix string `yaml:"job_channel_prefix"`

	// JobTTL is the expiry attached to every JobRecord write.
	JobTTL time.Duration `yaml:"job_ttl"`

	// PrequeueListName is the list SubmissionEntries are pushed onto at
	// submission time.
	PrequeueListName string `yaml:"prequeue_list_name"`

	// QueuedListName is the dispatch-ready list of DispatchEntries.
	QueuedListName string `yaml:"queued_list_name"`

	// DispatchedHashName is the hash of job name -> DispatchEntry for jobs
	// currently claimed by a worker.
	DispatchedHashName string `yaml:"dispatched_hash_name"`

	// BlacklistPrefix prefixes invocation blacklist keys: {prefix}:{invocation_id}.
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// Default names. The {drey} hash tag on the two queue lists pins them to a
// single cluster slot so scheduler moves between them stay on one shard.
const (
	DefaultWorkersHashName    = "Workers"
	DefaultWorkerChannel      = "WorkerChannel"
	DefaultJobKeyPrefix       = "Job"
	DefaultJobChannelPrefix   = "JobChannel"
	DefaultPrequeueListName   = "{drey}PrequeuedJobs"
	DefaultQueuedListName     = "{drey}QueuedJobs"
	DefaultDispatchedHashName = "DispatchedJobs"
	DefaultBlacklistPrefix    = "InvocationBlacklist"
	DefaultJobTTL             = time.Hour
)

// DefaultConfig returns a Config with every feature path enabled under the
// default names.
func DefaultConfig() Config {
	return Config{
		WorkersHashName:    DefaultWorkersHashName,
		WorkerChannel:      DefaultWorkerChannel,
		JobKeyPrefix:       DefaultJobKeyPrefix,
		JobChannelPrefix:   DefaultJobChannelPrefix,
		JobTTL:             DefaultJobTTL,
		PrequeueListName:   DefaultPrequeueListName,
		QueuedListName:     DefaultQueuedListName,
		DispatchedHashName: DefaultDispatchedHashName,
		BlacklistPrefix:    DefaultBlacklistPrefix,
	}
}
