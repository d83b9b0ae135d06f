package core

import "context"

type contextKey string

const ctxKeySyncID contextKey = "sync_id"

// ContextWithSyncID tags ctx with the ID of the running sync.
func ContextWithSyncID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySyncID, id)
}

// SyncIDFromContext extracts the sync ID from context.
func SyncIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySyncID).(string); ok {
		return v
	}
	return ""
}
