package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"go.uber.org/zap"
)

// StorageKey is the slot the session collection is stored under. Bump the
// version suffix whenever the stored JSON shape changes incompatibly.
const StorageKey = "term-chat-sessions-v1"

// Persister loads and saves the whole session collection. Failures are
// logged and recovered locally; they never reach the caller.
type Persister struct {
	kv  KV
	key string
	log *zap.Logger
}

// NewPersister wraps kv. A nil logger discards log output.
func NewPersister(kv KV, log *zap.Logger) *Persister {
	if log == nil {
		log = zap.NewNop()
	}
	return &Persister{kv: kv, key: StorageKey, log: log.Named("persist")}
}

// Load returns the stored sessions, newest first. Missing or unreadable data
// yields an empty collection.
func (p *Persister) Load(ctx context.Context) []Session {
	if p == nil || p.kv == nil {
		return []Session{}
	}
	data, err := p.kv.Get(ctx, p.key)
	if errors.Is(err, ErrNoValue) {
		return []Session{}
	}
	if err != nil {
		p.log.Warn("load sessions failed", zap.String("key", p.key), zap.Error(err))
		return []Session{}
	}

	var stored []Session
	if err := json.Unmarshal(data, &stored); err != nil {
		p.log.Warn("discarding unreadable sessions", zap.String("key", p.key), zap.Error(err))
		return []Session{}
	}

	sessions := make([]Session, 0, len(stored))
	for _, s := range stored {
		if s.ID == "" {
			continue
		}
		if s.Messages == nil {
			s.Messages = []Message{}
		}
		sessions = append(sessions, s)
	}
	slices.SortStableFunc(sessions, func(a, b Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return sessions
}

// Save writes the full collection. Errors are logged and dropped.
func (p *Persister) Save(ctx context.Context, sessions []Session) {
	if p == nil || p.kv == nil {
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		p.log.Error("encode sessions failed", zap.Error(err))
		return
	}
	if err := p.kv.Put(ctx, p.key, data); err != nil {
		p.log.Warn("save sessions failed", zap.String("key", p.key), zap.Error(err))
	}
}

// Close releases the underlying backend.
func (p *Persister) Close() error {
	if p == nil || p.kv == nil {
		return nil
	}
	return p.kv.Close()
}
