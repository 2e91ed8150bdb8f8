package backplane

import "fmt"

// Redis key and channel pattern helpers
//
// All names are derived from prefixes in the Config so that multiple farms
// can share a Redis deployment without collision.
//
// Job record key:     {job_key_prefix}:{job_name}
// Job event channel:  {job_channel_prefix}:{job_name}
// Blacklist key:      {blacklist_prefix}:{invocation_id}

// JobKey returns the Redis key for a job's record.
func JobKey(prefix, jobName string) string {
	return fmt.Sprintf("%s:%s", prefix, jobName)
}

// JobChannel returns the Pub/Sub channel name for a job's change events.
func JobChannel(prefix, jobName string) string {
	return fmt.Sprintf("%s:%s", prefix, jobName)
}

// BlacklistKey returns the Redis key marking an invocation as blacklisted.
func BlacklistKey(prefix, invocationID string) string {
	return fmt.Sprintf("%s:%s", prefix, invocationID)
}

// JobKey returns the record key for jobName under this backplane's config.
func (b *Backplane) JobKey(jobName string) string {
	return JobKey(b.config.JobKeyPrefix, jobName)
}

// JobChannel returns the event channel for jobName under this backplane's
// config.
func (b *Backplane) JobChannel(jobName string) string {
	return JobChannel(b.config.JobChannelPrefix, jobName)
}
