package ports

import (
	"context"
	"io"
	"time"

	"cockpit/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live platform capture producing raw s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture opens platform microphone sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// CaptureDevice is exclusive microphone access that encodes one take at a time.
type CaptureDevice interface {
	Acquire(ctx context.Context) error
	Begin() error
	Pause() error
	Resume() error
	// Finish stops encoding and returns the complete payload. The input
	// handle is released whether or not an error is returned.
	Finish() (domain.AudioPayload, error)
	// Release frees the input handle without producing a payload.
	Release() error
}

// LocalStore is client-resident key-value persistence.
type LocalStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

// DeliveryClient issues requests against the delivery service.
type DeliveryClient interface {
	Create(ctx context.Context, artifact domain.RecordingArtifact) (domain.CreateReceipt, error)
	PatchRecipient(ctx context.Context, recordingID, customerID string) (deliveredAt time.Time, err error)
	Fetch(ctx context.Context, recordingID string) (domain.AudioDownload, error)
	List(ctx context.Context) (domain.RemoteListing, error)
}

// EventSubscriber opens the delivery service event feed.
type EventSubscriber interface {
	Subscribe(ctx context.Context) (EventStream, error)
}

// EventStream is an open delivery service event feed.
type EventStream interface {
	Events() <-chan domain.RemoteEvent
	Wait() error
	Close() error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecorderStateChanged(state domain.RecorderState, reason domain.RecorderStateReason)
	ArtifactChanged(artifact domain.RecordingArtifact)
	BackendError(code domain.ErrorCode, detail string)
}

// RecordingCatalog is the authoritative local list of artifacts.
type RecordingCatalog interface {
	Insert(artifact domain.RecordingArtifact) error
	Get(id string) (domain.RecordingArtifact, bool)
	Snapshot() []domain.RecordingArtifact
	Pending() []domain.RecordingArtifact
	UpdateRecipient(id string, customerID string) (domain.RecordingArtifact, error)
	Transition(id string, from, to domain.SyncState) (domain.RecordingArtifact, error)
	MarkSynced(id string, clearPayload bool) (domain.RecordingArtifact, error)
	MarkDelivered(id string, customerID string, at time.Time) (domain.RecordingArtifact, error)
}
