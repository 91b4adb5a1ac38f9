// Package catalog holds the authoritative list of recordings on this
// machine and writes every change through to the local store.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/localstore"
	"cockpit/internal/ports"
)

// StorageKey is the local store key holding the serialized catalog.
const StorageKey = "crm-recordings"

// ErrPersist marks a mutation that was applied in memory but not written to
// the local store. The next successful mutation rewrites the full snapshot.
var ErrPersist = errors.New("catalog not persisted")

// Listener observes a changed artifact after the change is persisted.
type Listener func(artifact domain.RecordingArtifact)

// Catalog is newest-first by insertion.
type Catalog struct {
	store  ports.LocalStore
	logger *zap.Logger

	mu        sync.Mutex
	artifacts []domain.RecordingArtifact

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Open seeds the catalog from store. Unreadable contents degrade to an empty
// catalog, and artifacts left UPLOADING by a previous process become FAILED.
func Open(store ports.LocalStore, logger *zap.Logger) (*Catalog, error) {
	if store == nil {
		return nil, errors.New("local store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{store: store, logger: logger}

	artifacts, err := c.load()
	if err != nil {
		logger.Warn("starting with empty catalog", zap.Error(err))
		artifacts = nil
	}
	c.artifacts = artifacts

	recovered := 0
	for i := range c.artifacts {
		if c.artifacts[i].State == domain.SyncStateUploading {
			c.artifacts[i].State = domain.SyncStateFailed
			recovered++
		}
	}
	if recovered > 0 {
		logger.Info("recovered interrupted uploads", zap.Int("count", recovered))
		if err := c.persistLocked(); err != nil {
			logger.Warn("failed to persist recovered catalog", zap.Error(err))
		}
	}
	return c, nil
}

func (c *Catalog) load() ([]domain.RecordingArtifact, error) {
	data, err := c.store.Get(StorageKey)
	if errors.Is(err, localstore.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceCorrupt, err)
	}
	var artifacts []domain.RecordingArtifact
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceCorrupt, err)
	}
	return lo.UniqBy(artifacts, func(a domain.RecordingArtifact) string { return a.ID }), nil
}

// OnChange registers a listener for every successful mutation.
func (c *Catalog) OnChange(listener Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Insert places a new artifact at the front.
func (c *Catalog) Insert(artifact domain.RecordingArtifact) error {
	if artifact.ID == "" {
		return errors.New("artifact id is required")
	}
	_, err := c.mutate(func() (domain.RecordingArtifact, error) {
		if _, _, ok := c.findLocked(artifact.ID); ok {
			return domain.RecordingArtifact{}, fmt.Errorf("artifact %s already exists", artifact.ID)
		}
		c.artifacts = append([]domain.RecordingArtifact{artifact.Clone()}, c.artifacts...)
		return artifact, nil
	})
	return err
}

// UpdateRecipient rewrites the customer of an undelivered artifact in place.
func (c *Catalog) UpdateRecipient(id string, customerID string) (domain.RecordingArtifact, error) {
	return c.update(id, func(a *domain.RecordingArtifact) error {
		if a.Delivered() {
			return domain.ErrAlreadyDelivered
		}
		a.CustomerID = customerID
		return nil
	})
}

// Transition moves an artifact from one sync state to another. It fails
// with ErrInvalidState when the artifact is no longer in from or the edge is
// not part of the lifecycle.
func (c *Catalog) Transition(id string, from, to domain.SyncState) (domain.RecordingArtifact, error) {
	return c.update(id, func(a *domain.RecordingArtifact) error {
		return transition(a, from, to)
	})
}

// MarkSynced completes an upload, dropping the local payload when the audio
// is durably held by the delivery service.
func (c *Catalog) MarkSynced(id string, clearPayload bool) (domain.RecordingArtifact, error) {
	return c.update(id, func(a *domain.RecordingArtifact) error {
		if err := transition(a, domain.SyncStateUploading, domain.SyncStateSynced); err != nil {
			return err
		}
		if clearPayload {
			a.Payload = ""
		}
		return nil
	})
}

// MarkDelivered records that customerID received the artifact at at.
func (c *Catalog) MarkDelivered(id string, customerID string, at time.Time) (domain.RecordingArtifact, error) {
	return c.update(id, func(a *domain.RecordingArtifact) error {
		if a.Delivered() {
			return domain.ErrAlreadyDelivered
		}
		if customerID != "" {
			a.CustomerID = customerID
		}
		deliveredAt := at.UTC()
		a.DeliveredAt = &deliveredAt
		return nil
	})
}

func (c *Catalog) Get(id string) (domain.RecordingArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, _, ok := c.findLocked(id)
	return a.Clone(), ok
}

// Snapshot returns copies of every artifact, newest first.
func (c *Catalog) Snapshot() []domain.RecordingArtifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.artifacts, func(a domain.RecordingArtifact, _ int) domain.RecordingArtifact {
		return a.Clone()
	})
}

// Pending returns the artifacts eligible for (re)upload.
func (c *Catalog) Pending() []domain.RecordingArtifact {
	return lo.Filter(c.Snapshot(), func(a domain.RecordingArtifact, _ int) bool {
		return a.State.NeedsUpload()
	})
}

func transition(a *domain.RecordingArtifact, from, to domain.SyncState) error {
	if a.State != from {
		return fmt.Errorf("%w: %s expected %s, got %s", domain.ErrInvalidState, a.ID, from, a.State)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, from, to)
	}
	a.State = to
	return nil
}

func (c *Catalog) update(id string, apply func(*domain.RecordingArtifact) error) (domain.RecordingArtifact, error) {
	return c.mutate(func() (domain.RecordingArtifact, error) {
		_, idx, ok := c.findLocked(id)
		if !ok {
			return domain.RecordingArtifact{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		next := c.artifacts[idx].Clone()
		if err := apply(&next); err != nil {
			return domain.RecordingArtifact{}, err
		}
		c.artifacts[idx] = next
		return next.Clone(), nil
	})
}

// mutate applies change and writes the snapshot under one lock, then
// notifies listeners outside it.
func (c *Catalog) mutate(change func() (domain.RecordingArtifact, error)) (domain.RecordingArtifact, error) {
	c.mu.Lock()
	changed, err := change()
	if err != nil {
		c.mu.Unlock()
		return domain.RecordingArtifact{}, err
	}
	persistErr := c.persistLocked()
	c.mu.Unlock()

	if persistErr != nil {
		c.logger.Error("catalog write-through failed", zap.String("recordingId", changed.ID), zap.Error(persistErr))
		persistErr = fmt.Errorf("%w: %v", ErrPersist, persistErr)
	}
	c.notify(changed)
	return changed, persistErr
}

func (c *Catalog) persistLocked() error {
	if c.artifacts == nil {
		c.artifacts = []domain.RecordingArtifact{}
	}
	data, err := json.Marshal(c.artifacts)
	if err != nil {
		return err
	}
	return c.store.Put(StorageKey, data)
}

func (c *Catalog) findLocked(id string) (domain.RecordingArtifact, int, bool) {
	return lo.FindIndexOf(c.artifacts, func(a domain.RecordingArtifact) bool {
		return a.ID == id
	})
}

func (c *Catalog) notify(artifact domain.RecordingArtifact) {
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(artifact.Clone())
	}
}
