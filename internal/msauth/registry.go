package msauth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/graphbridge/graphbridge/internal/logging"
)

// Registry is the in-memory view of all signed-in identities, backed by the
// CredentialStore. Entries keep the order in which identities first
// authenticated; that order is durable (it is stored as an array on disk) and
// determines the implicit default account.
type Registry struct {
	mu      sync.RWMutex
	store   *CredentialStore
	order   []string
	records map[string]*Record
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry loads the persisted identities from the store. A corrupt store
// is surfaced as-is; callers that explicitly accept degraded startup can use
// NewEmptyRegistry instead.
func NewRegistry(store *CredentialStore, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	records, err := store.Load()
	if err != nil {
		return nil, err
	}

	r := &Registry{
		store:   store,
		records: make(map[string]*Record, len(records)),
		logger:  logger,
		now:     time.Now,
	}
	for i := range records {
		rec := records[i]
		if _, dup := r.records[rec.Identity.ID]; dup {
			// Older writers could not produce duplicates; tolerate them
			// anyway by keeping the first (oldest) entry.
			continue
		}
		r.order = append(r.order, rec.Identity.ID)
		r.records[rec.Identity.ID] = &rec
	}

	logger.Debug("loaded account registry", "identities", len(r.order))
	return r, nil
}

// NewEmptyRegistry creates a registry with no identities, still backed by the
// store for subsequent saves. Used when the caller chose to proceed past a
// corrupt credential store.
func NewEmptyRegistry(store *CredentialStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   store,
		records: make(map[string]*Record),
		logger:  logger,
		now:     time.Now,
	}
}

// List returns all identities in first-authenticated order.
func (r *Registry) List() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Identity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].Identity)
	}
	return out
}

// Get returns a copy of the record for the given identity.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Resolve maps an optional account selector to a concrete identity ID. An
// empty selector means "the first account that ever authenticated"; a
// non-empty selector must name a known identity.
func (r *Registry) Resolve(selector string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if selector == "" {
		if len(r.order) == 0 {
			return "", ErrNoAccounts
		}
		return r.order[0], nil
	}
	if _, ok := r.records[selector]; !ok {
		return "", &UnknownAccountError{ID: selector}
	}
	return selector, nil
}

// Upsert records a (re-)authenticated identity. Idempotent: a known identity
// gets its token set and label updated in place, keeping its original
// position and AddedAt timestamp; a new identity is appended. The durable
// store is updated before Upsert returns; when the store write fails, the
// in-memory state is rolled back so memory and disk never silently diverge.
func (r *Registry) Upsert(identity Identity, tokens TokenSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[identity.ID]; ok {
		prev := *rec
		rec.Tokens = tokens
		if identity.Label != "" {
			rec.Identity.Label = identity.Label
		}
		if err := r.persistLocked(); err != nil {
			*rec = prev
			return err
		}
		return nil
	}

	r.order = append(r.order, identity.ID)
	r.records[identity.ID] = &Record{
		Identity: identity,
		Tokens:   tokens,
		AddedAt:  r.now(),
	}
	if err := r.persistLocked(); err != nil {
		delete(r.records, identity.ID)
		r.order = r.order[:len(r.order)-1]
		return err
	}

	r.logger.Info("registered account", logging.UserHash(identity.ID))
	return nil
}

// Invalidate marks the identity's access token as expired so the next token
// request performs a refresh. In-memory only: the durable snapshot is
// rewritten on the refresh that follows.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		rec.Tokens.Expiry = time.Time{}
	}
}

// Remove deletes an identity and persists the remaining entries. The ordering
// of the survivors is unchanged, so the default account only shifts when the
// first entry itself is removed.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return &UnknownAccountError{ID: id}
	}

	prevOrder := r.order
	order := make([]string, 0, len(prevOrder)-1)
	for _, existing := range prevOrder {
		if existing != id {
			order = append(order, existing)
		}
	}
	delete(r.records, id)
	r.order = order

	if err := r.persistLocked(); err != nil {
		r.records[id] = rec
		r.order = prevOrder
		return err
	}

	r.logger.Info("removed account", logging.UserHash(id))
	return nil
}

// persistLocked writes the current state through the store. Callers must hold
// the write lock. The store write is local file I/O, never a network call.
func (r *Registry) persistLocked() error {
	records := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		records = append(records, *r.records[id])
	}
	if err := r.store.Save(records); err != nil {
		return fmt.Errorf("failed to persist account registry: %w", err)
	}
	return nil
}
