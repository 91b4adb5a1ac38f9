package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"cockpit/internal/domain"
)

type memoryEntry struct {
	rec         domain.StoredRecording
	audio       []byte
	contentType string
}

// Memory is the process-local fallback used when no durable backend is
// configured. Contents are lost on restart and no file ids are issued.
type Memory struct {
	mu      sync.RWMutex
	entries []memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Mode() domain.StorageMode { return domain.StorageModeMemory }

func (m *Memory) Upsert(_ context.Context, upload Upload) (domain.CreateReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := upload.Recording
	rec.StoredAt = m.now().UTC()
	rec.FileID = ""
	if prev, idx, ok := m.find(rec.ID); ok {
		if rec.DeliveredAt == nil {
			rec.DeliveredAt = prev.rec.DeliveredAt
		}
		m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	}
	entry := memoryEntry{rec: rec, audio: append([]byte(nil), upload.Audio...), contentType: upload.ContentType}
	m.entries = append([]memoryEntry{entry}, m.entries...)
	return receiptFor(rec, m.Mode()), nil
}

func (m *Memory) Deliver(_ context.Context, recordingID, customerID string, at time.Time) (domain.StoredRecording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, idx, ok := m.find(recordingID)
	if !ok {
		return domain.StoredRecording{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	at = at.UTC()
	m.entries[idx].rec.CustomerID = customerID
	m.entries[idx].rec.DeliveredAt = &at
	return m.entries[idx].rec, nil
}

func (m *Memory) Get(_ context.Context, recordingID string) (domain.StoredRecording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, _, ok := m.find(recordingID)
	if !ok {
		return domain.StoredRecording{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	return entry.rec, nil
}

func (m *Memory) Audio(_ context.Context, recordingID string) (Audio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, _, ok := m.find(recordingID)
	if !ok {
		return Audio{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	if len(entry.audio) == 0 {
		return Audio{}, fmt.Errorf("%w: %s", domain.ErrNotReady, recordingID)
	}
	return Audio{
		Data:        append([]byte(nil), entry.audio...),
		ContentType: entry.contentType,
		FileName:    entry.rec.FileName,
		RecordedAt:  entry.rec.CreatedAt,
	}, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]domain.StoredRecording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := lo.Map(m.entries, func(e memoryEntry, _ int) domain.StoredRecording { return e.rec })
	if n := normalizeLimit(limit); len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) find(id string) (memoryEntry, int, bool) {
	return lo.FindIndexOf(m.entries, func(e memoryEntry) bool { return e.rec.ID == id })
}
