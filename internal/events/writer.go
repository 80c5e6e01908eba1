// Package events appends to the store's change log inside the transaction
// that made the change.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types written by the store.
const (
	TabCreated      = "tab.created"
	TabUpdated      = "tab.updated"
	TabDeleted      = "tab.deleted"
	TabSeeded       = "tab.seeded"
	TaskCreated     = "task.created"
	TaskUpdated     = "task.updated"
	TaskSoftDeleted = "task.soft_deleted"
	TaskRestored    = "task.restored"
	APIKeyCreated   = "api_key.created"
	APIKeyRevoked   = "api_key.revoked"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, ownerID, entityKind string, entityID int64, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	var id any
	if entityID > 0 {
		id = strconv.FormatInt(entityID, 10)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,owner_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, ownerID, entityKind, id, string(data))
	return err
}
