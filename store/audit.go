package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry records one mutation applied by a backend. OldValue and NewValue
// hold the JSON form of the row before and after; either may be empty.
type AuditEntry struct {
	ID         int64
	EntityType string
	EntityID   int64
	Action     string
	OldValue   string
	NewValue   string
	Actor      string
	CreatedAt  time.Time
}

func (db *DB) AppendAudit(entityType string, entityID int64, action, oldValue, newValue, actor string) error {
	_, err := db.Exec(db.Q(`INSERT INTO audit_log (entity_type, entity_id, action, old_value, new_value, actor) VALUES (?, ?, ?, ?, ?, ?)`),
		entityType, entityID, action, oldValue, newValue, actor)
	if err != nil {
		return fmt.Errorf("append audit %s %d: %w", entityType, entityID, err)
	}
	return nil
}

// ListEntityAudit returns the history of one row, newest first.
func (db *DB) ListEntityAudit(entityType string, entityID int64) ([]*AuditEntry, error) {
	rows, err := db.Query(db.Q(`SELECT id, entity_type, entity_id, action, old_value, new_value, actor, created_at FROM audit_log WHERE entity_type=? AND entity_id=? ORDER BY id DESC`), entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]*AuditEntry, error) {
	entries := []*AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.OldValue, &e.NewValue, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
