package backplane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalChange(t *testing.T) {
	t.Run("reset carries a full snapshot", func(t *testing.T) {
		event := &ChangeEvent{
			Type:          ChangeTypeReset,
			Source:        "scheduler-1",
			EffectiveAtMs: 1234,
			Reset: &ResetChange{
				Job:         &JobRecord{Name: "op", Stage: JobStageQueued},
				ExpiresAtMs: 5678,
			},
		}

		data, err := MarshalChange(event)
		require.NoError(t, err)

		parsed, err := ParseChange(data)
		require.NoError(t, err)
		assert.Equal(t, event, parsed)
	})

	t.Run("remove carries name and reason", func(t *testing.T) {
		event := &ChangeEvent{
			Type:   ChangeTypeRemove,
			Remove: &RemoveChange{Name: "builder-2:8981", Reason: "invalid worker record"},
		}

		data, err := MarshalChange(event)
		require.NoError(t, err)

		parsed, err := ParseChange(data)
		require.NoError(t, err)
		assert.Equal(t, "builder-2:8981", parsed.Remove.Name)
		assert.Equal(t, "invalid worker record", parsed.Remove.Reason)
	})

	t.Run("rejects reset without a record", func(t *testing.T) {
		_, err := MarshalChange(&ChangeEvent{Type: ChangeTypeReset})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing job record")
	})

	t.Run("rejects mismatched variant payload", func(t *testing.T) {
		_, err := MarshalChange(&ChangeEvent{
			Type:   ChangeTypeReset,
			Reset:  &ResetChange{Job: &JobRecord{Name: "op"}},
			Remove: &RemoveChange{Name: "op"},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "carries remove payload")
	})
}

func TestParseChange(t *testing.T) {
	t.Run("rejects non-JSON payloads", func(t *testing.T) {
		_, err := ParseChange([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("rejects unknown change types", func(t *testing.T) {
		_, err := ParseChange([]byte(`{"type":"expire"}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown change type")
	})

	t.Run("rejects remove without a name", func(t *testing.T) {
		_, err := ParseChange([]byte(`{"type":"remove","remove":{}}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing name")
	})
}
