// Package audience resolves a post's level into the concrete recipient set.
package audience

import (
	"context"
	"sync"

	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

// UserSource is the subset of the store the resolver reads.
type UserSource interface {
	Users(ctx context.Context) ([]storage.User, error)
	UsersByLevel(ctx context.Context, level string) ([]storage.User, error)
}

// Resolver computes recipients for a level. Admins always receive every
// post; cohort members come first, in store order, and the admin set keeps
// its configured order. Duplicates keep their first occurrence.
type Resolver struct {
	store UserSource
	log   logx.Logger

	mu     sync.RWMutex
	admins []int64
}

func New(store UserSource, admins []int64, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Resolver{store: store, log: log}
	r.Apply(admins)
	return r
}

// Apply replaces the admin id set on config reload.
func (r *Resolver) Apply(admins []int64) {
	cp := make([]int64, len(admins))
	copy(cp, admins)
	r.mu.Lock()
	r.admins = cp
	r.mu.Unlock()
}

// Admins returns the current admin id set in configured order.
func (r *Resolver) Admins() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]int64, len(r.admins))
	copy(cp, r.admins)
	return cp
}

// Resolve returns recipient chat ids for level. An unknown level falls back
// to admins only, so a mistyped level never broadcasts to everyone.
func (r *Resolver) Resolve(ctx context.Context, level string) ([]int64, error) {
	admins := r.Admins()

	var cohort []storage.User
	switch {
	case level == storage.LevelAdmins:
		// admins only
	case level == storage.LevelAll:
		users, err := r.store.Users(ctx)
		if err != nil {
			return nil, err
		}
		cohort = users
	case storage.KnownCohort(level):
		users, err := r.store.UsersByLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		cohort = users
	default:
		r.log.Warn("unknown audience level, delivering to admins only", logx.String("level", level))
	}

	out := make([]int64, 0, len(cohort)+len(admins))
	seen := make(map[int64]struct{}, len(cohort)+len(admins))
	for _, u := range cohort {
		if _, ok := seen[u.TelegramID]; ok {
			continue
		}
		seen[u.TelegramID] = struct{}{}
		out = append(out, u.TelegramID)
	}
	for _, id := range admins {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
