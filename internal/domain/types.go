package domain

import "time"

// RecorderState models the capture lifecycle.
type RecorderState string

const (
	RecorderStateIdle       RecorderState = "idle"
	RecorderStateRecording  RecorderState = "recording"
	RecorderStatePaused     RecorderState = "paused"
	RecorderStateFinalising RecorderState = "finalising"
)

// RecorderStateReason provides a structured reason for state transitions.
type RecorderStateReason string

const (
	RecorderReasonMicCold          RecorderStateReason = "mic_cold"
	RecorderReasonRecordingStarted RecorderStateReason = "recording_started"
	RecorderReasonPaused           RecorderStateReason = "recording_paused"
	RecorderReasonResumed          RecorderStateReason = "recording_resumed"
	RecorderReasonFinalising       RecorderStateReason = "finalising"
	RecorderReasonArtifactSaved    RecorderStateReason = "artifact_saved"
	RecorderReasonFinalizeFailed   RecorderStateReason = "finalize_failed"
)

// ErrorCode identifies non-fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeCapture     ErrorCode = "capture"
	ErrorCodeFinalize    ErrorCode = "finalize"
	ErrorCodePersistence ErrorCode = "persistence"
	ErrorCodeUpload      ErrorCode = "upload"
	ErrorCodeDelivery    ErrorCode = "delivery"
	ErrorCodeReconcile   ErrorCode = "reconcile"
)

// SyncState is the upload lifecycle of a recording artifact.
type SyncState string

const (
	SyncStateLocal     SyncState = "LOCAL"
	SyncStateUploading SyncState = "UPLOADING"
	SyncStateSynced    SyncState = "SYNCED"
	SyncStateFailed    SyncState = "FAILED"
)

// NeedsUpload reports whether an artifact in this state is eligible for (re)upload.
func (s SyncState) NeedsUpload() bool {
	return s == SyncStateLocal || s == SyncStateFailed
}

// UnassignedAppointment is the file name token used when a capture was not
// bound to an appointment.
const UnassignedAppointment = "unassigned"

// RecordingArtifact is one completed audio capture and its metadata.
type RecordingArtifact struct {
	ID            string     `json:"id"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	CustomerID    string     `json:"customerId"`
	CreatedAt     time.Time  `json:"createdAt"`
	FileName      string     `json:"fileName"`
	Payload       string     `json:"payload,omitempty"`
	Size          int64      `json:"size"`
	State         SyncState  `json:"state"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}

// HasAppointment reports whether the capture was bound to an appointment.
func (a RecordingArtifact) HasAppointment() bool {
	return a.AppointmentID != ""
}

// Delivered reports whether the artifact was sent to its recipient.
func (a RecordingArtifact) Delivered() bool {
	return a.DeliveredAt != nil
}

// Clone returns a copy that shares no pointers with the receiver.
func (a RecordingArtifact) Clone() RecordingArtifact {
	out := a
	if a.DeliveredAt != nil {
		at := *a.DeliveredAt
		out.DeliveredAt = &at
	}
	return out
}

// AudioPayload is a finalized capture returned by the capture device.
type AudioPayload struct {
	Data        []byte
	ContentType string
}

// Size is the byte length of the encoded audio.
func (p AudioPayload) Size() int64 {
	return int64(len(p.Data))
}

// StorageMode names the delivery service backend.
type StorageMode string

const (
	StorageModeMemory   StorageMode = "memory"
	StorageModePostgres StorageMode = "postgres"
	StorageModeRedis    StorageMode = "redis"
)

// Durable reports whether the mode survives a delivery service restart.
func (m StorageMode) Durable() bool {
	return m == StorageModePostgres || m == StorageModeRedis
}

// CreateReceipt is the delivery service acknowledgement of an upload.
type CreateReceipt struct {
	Acknowledged bool        `json:"acknowledged"`
	InsertedID   string      `json:"insertedId"`
	StoredAt     time.Time   `json:"storedAt"`
	Mode         StorageMode `json:"mode"`
	FileID       string      `json:"fileId,omitempty"`
}

// DurablyStored reports whether the service confirmed the audio left the
// client for durable storage.
func (r CreateReceipt) DurablyStored() bool {
	return r.Mode.Durable() && r.FileID != ""
}

// AudioDownload is a fetched recording.
type AudioDownload struct {
	Data        []byte
	ContentType string
	FileName    string
	RecordedAt  time.Time
	Source      string
}

// StoredRecording is the delivery service view of a recording.
type StoredRecording struct {
	ID            string     `json:"id"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	CustomerID    string     `json:"customerId"`
	CreatedAt     time.Time  `json:"createdAt"`
	FileName      string     `json:"fileName"`
	Size          int64      `json:"size"`
	State         SyncState  `json:"state"`
	StoredAt      time.Time  `json:"storedAt"`
	FileID        string     `json:"fileId,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}

// RemoteListing is the newest-first listing returned by the delivery service.
type RemoteListing struct {
	Count      int               `json:"count"`
	Recordings []StoredRecording `json:"recordings"`
	Mode       StorageMode       `json:"mode"`
}

// RemoteEventType identifies delivery service feed events.
type RemoteEventType string

const (
	RemoteEventStored    RemoteEventType = "stored"
	RemoteEventDelivered RemoteEventType = "delivered"
)

// RemoteEvent is pushed by the delivery service when a recording changes.
type RemoteEvent struct {
	Type        RemoteEventType `json:"type"`
	RecordingID string          `json:"recordingId"`
	CustomerID  string          `json:"customerId,omitempty"`
	StoredAt    *time.Time      `json:"storedAt,omitempty"`
	DeliveredAt *time.Time      `json:"deliveredAt,omitempty"`
}

// Status summarizes the current recorder status.
type Status struct {
	State         RecorderState `json:"state"`
	Active        bool          `json:"active"`
	AppointmentID string        `json:"appointmentId,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// ContentTypeWAV is the media type of every captured payload.
const ContentTypeWAV = "audio/wav"
