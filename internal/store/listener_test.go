package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	payload := `{
		"op": "INSERT",
		"row": {
			"id": "6a1f0c9e-9f2d-4d0a-b8a5-0f40a9d2f111",
			"user_id": "alice",
			"title": "write report",
			"description": "quarterly numbers",
			"is_complete": false,
			"priority": "high",
			"due_date": "2024-06-10",
			"created_at": "2024-06-01T09:00:00+00:00",
			"updated_at": "2024-06-01T09:00:00+00:00"
		}
	}`

	event, err := decodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventInsert, event.Kind)
	assert.Equal(t, "6a1f0c9e-9f2d-4d0a-b8a5-0f40a9d2f111", event.Row.ID)
	assert.Equal(t, "alice", event.Row.UserID)
	assert.Equal(t, "high", event.Row.Priority)
	require.True(t, event.Row.Description.Valid)
	assert.Equal(t, "quarterly numbers", event.Row.Description.String)
	require.True(t, event.Row.DueDate.Valid)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), event.Row.DueDate.Time)
	assert.Equal(t, 2024, event.Row.CreatedAt.Year())
}

func TestDecodeEventNullFields(t *testing.T) {
	payload := `{
		"op": "DELETE",
		"row": {
			"id": "6a1f0c9e-9f2d-4d0a-b8a5-0f40a9d2f111",
			"user_id": "alice",
			"title": "bare task",
			"description": null,
			"is_complete": true,
			"priority": "normal",
			"due_date": null,
			"created_at": "2024-06-01T09:00:00Z",
			"updated_at": "2024-06-02T09:00:00Z"
		}
	}`

	event, err := decodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventDelete, event.Kind)
	assert.False(t, event.Row.Description.Valid)
	assert.False(t, event.Row.DueDate.Valid)
	assert.True(t, event.Row.IsComplete)
}

func TestDecodeEventRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "garbage"},
		{name: "unknown op", payload: `{"op": "TRUNCATE", "row": {}}`},
		{name: "bad due date", payload: `{"op": "UPDATE", "row": {"due_date": "June 10th"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvent(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestEventOpMapping(t *testing.T) {
	for op, want := range map[string]EventKind{
		"INSERT": EventInsert,
		"UPDATE": EventUpdate,
		"DELETE": EventDelete,
	} {
		event, err := decodeEvent(`{"op": "` + op + `", "row": {"id": "x"}}`)
		require.NoError(t, err)
		assert.Equal(t, want, event.Kind)
	}
}
