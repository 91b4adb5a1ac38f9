// Package ledger stores uploaded recordings for the delivery service.
package ledger

import (
	"context"
	"time"

	"cockpit/internal/domain"
)

// DefaultRecentLimit is the size of the listing returned by the service.
const DefaultRecentLimit = 20

// Upload is one create request after its payload has been decoded.
type Upload struct {
	Recording   domain.StoredRecording
	Audio       []byte
	ContentType string
}

// Audio is the stored payload of a recording.
type Audio struct {
	Data        []byte
	ContentType string
	FileName    string
	RecordedAt  time.Time
}

// Ledger is the delivery service storage port. Upsert replaces by recording
// id; an earlier delivery survives a re-upload.
type Ledger interface {
	Mode() domain.StorageMode
	Upsert(ctx context.Context, upload Upload) (domain.CreateReceipt, error)
	// Deliver sets the recipient and delivery time, failing with
	// domain.ErrNotFound for unknown ids.
	Deliver(ctx context.Context, recordingID, customerID string, at time.Time) (domain.StoredRecording, error)
	Get(ctx context.Context, recordingID string) (domain.StoredRecording, error)
	// Audio fails with domain.ErrNotReady when the record exists without audio.
	Audio(ctx context.Context, recordingID string) (Audio, error)
	Recent(ctx context.Context, limit int) ([]domain.StoredRecording, error)
	Ping(ctx context.Context) error
	Close() error
}

func receiptFor(rec domain.StoredRecording, mode domain.StorageMode) domain.CreateReceipt {
	return domain.CreateReceipt{
		Acknowledged: true,
		InsertedID:   rec.ID,
		StoredAt:     rec.StoredAt,
		Mode:         mode,
		FileID:       rec.FileID,
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
