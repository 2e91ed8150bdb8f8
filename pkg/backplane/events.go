package backplane

import (
	"encoding/json"
	"fmt"
)

// ChangeEvent is the notification published after a successful state
// mutation. It is a tagged union: exactly one of Reset or Remove is set,
// matching Type. The same shape is used on job channels and on the worker
// channel; which channel it arrived on tells the subscriber what the name
// refers to.
//
// Delivery is Redis Pub/Sub: at-most-once and non-durable. Subscribers must
// treat events as a liveness hint and reconcile via direct reads (GetJob,
// GetWorkers) when in doubt.
type ChangeEvent struct {
	Type          ChangeType    `json:"type"`
	Source        string        `json:"source,omitempty"`          // Identity of the backplane instance that published
	EffectiveAtMs int64         `json:"effective_at_ms,omitempty"` // Unix millis of the mutation
	Reset         *ResetChange  `json:"reset,omitempty"`
	Remove        *RemoveChange `json:"remove,omitempty"`
}

// ChangeType discriminates the ChangeEvent union.
type ChangeType string

const (
	// ChangeTypeReset carries a full JobRecord snapshot. A late-joining
	// subscriber can reconstruct state from the event alone.
	ChangeTypeReset ChangeType = "reset"

	// ChangeTypeRemove announces that an entry was removed, carrying its
	// name and an optional reason.
	ChangeTypeRemove ChangeType = "remove"
)

// ResetChange is the payload of a reset event: the record as stored, after
// the on-store transform.
type ResetChange struct {
	Job         *JobRecord `json:"job"`
	ExpiresAtMs int64      `json:"expires_at_ms,omitempty"` // When the record's TTL will elapse, if it was written with one
}

// RemoveChange is the payload of a remove event.
type RemoveChange struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks that the event is a well-formed union member: the variant
// payload matching Type is set and the other is not.
func (e *ChangeEvent) Validate() error {
	switch e.Type {
	case ChangeTypeReset:
		if e.Reset == nil || e.Reset.Job == nil {
			return fmt.Errorf("reset event missing job record")
		}
		if e.Remove != nil {
			return fmt.Errorf("reset event carries remove payload")
		}
	case ChangeTypeRemove:
		if e.Remove == nil || e.Remove.Name == "" {
			return fmt.Errorf("remove event missing name")
		}
		if e.Reset != nil {
			return fmt.Errorf("remove event carries reset payload")
		}
	default:
		return fmt.Errorf("unknown change type: %q", e.Type)
	}
	return nil
}

// MarshalChange serializes a ChangeEvent for publishing, rejecting malformed
// unions rather than putting them on the wire.
func MarshalChange(e *ChangeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %w", err)
	}
	return data, nil
}

// ParseChange deserializes a published ChangeEvent, validating the union.
func ParseChange(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid change event: %w", err)
	}
	return &e, nil
}
