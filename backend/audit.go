package backend

import (
	"context"
	"encoding/json"
	"log"

	"relaygate/protocol"
	"relaygate/store"
)

// Audit actions.
const (
	actionCreate = "create"
	actionUpdate = "update"
	actionRemove = "remove"
)

type actorKey struct{}

func withActor(ctx context.Context, src protocol.Address) context.Context {
	return context.WithValue(ctx, actorKey{}, src.Node)
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// audit appends one mutation to the audit log. Failures are logged and do
// not fail the command, the row has already been written.
func audit(ctx context.Context, db *store.DB, entity string, id int64, action string, before, after any) {
	if err := db.AppendAudit(entity, id, action, auditJSON(before), auditJSON(after), actorFrom(ctx)); err != nil {
		log.Printf("backend: %v", err)
	}
}

func auditJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
