package draft

import (
	"context"
	"errors"
	"time"
)

var ErrNoDraft = errors.New("no restorable draft")

// Snapshot is a not yet submitted copy of form state.
type Snapshot struct {
	Key     string         `json:"key"`
	Fields  map[string]any `json:"fields"`
	SavedAt time.Time      `json:"saved_at"`
}

// Store is local durable storage for drafts. ReadDraft returns nil, nil
// when no draft exists.
type Store interface {
	WriteDraft(ctx context.Context, key string, snap Snapshot) error
	ReadDraft(ctx context.Context, key string) (*Snapshot, error)
	ClearDraft(ctx context.Context, key string) error
}
