package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

// Recorder owns the single capture session and turns finished takes into
// catalog artifacts.
type Recorder struct {
	device    ports.CaptureDevice
	catalog   ports.RecordingCatalog
	events    ports.EventSink
	finalizer artifactFinalizer
	logger    *zap.Logger

	// opMu serializes operations; mu guards the fields read by Status.
	opMu    sync.Mutex
	mu      sync.Mutex
	current *activeSession
	lastErr string
}

func NewRecorder(device ports.CaptureDevice, catalog ports.RecordingCatalog, events ports.EventSink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		device:    device,
		catalog:   catalog,
		events:    events,
		finalizer: newArtifactFinalizer(),
		logger:    logger,
	}
}

// Start acquires the microphone and begins a take bound to appointmentID.
// An empty appointmentID records an unassigned take.
func (r *Recorder) Start(ctx context.Context, appointmentID string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if state := r.state(); state != domain.RecorderStateIdle {
		return fmt.Errorf("%w: recorder is %s", domain.ErrInvalidState, state)
	}

	if err := r.device.Acquire(ctx); err != nil {
		return r.fail(domain.ErrorCodeCapture, fmt.Errorf("acquire microphone: %w", err))
	}
	if err := r.device.Begin(); err != nil {
		_ = r.device.Release()
		return r.fail(domain.ErrorCodeCapture, fmt.Errorf("begin capture: %w", err))
	}

	appointmentID = strings.TrimSpace(appointmentID)
	r.mu.Lock()
	r.current = &activeSession{
		appointmentID: appointmentID,
		startedAt:     r.finalizer.now(),
		state:         domain.RecorderStateRecording,
	}
	r.lastErr = ""
	r.mu.Unlock()

	r.logger.Info("recording started", zap.String("appointmentId", appointmentID))
	r.events.RecorderStateChanged(domain.RecorderStateRecording, domain.RecorderReasonRecordingStarted)
	return nil
}

// Pause is valid only while recording.
func (r *Recorder) Pause() error {
	return r.toggle(domain.RecorderStateRecording, domain.RecorderStatePaused, domain.RecorderReasonPaused, r.device.Pause)
}

// Resume is valid only while paused.
func (r *Recorder) Resume() error {
	return r.toggle(domain.RecorderStatePaused, domain.RecorderStateRecording, domain.RecorderReasonResumed, r.device.Resume)
}

func (r *Recorder) toggle(from, to domain.RecorderState, reason domain.RecorderStateReason, apply func() error) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if state := r.state(); state != from {
		return fmt.Errorf("%w: recorder is %s", domain.ErrInvalidState, state)
	}
	if err := apply(); err != nil {
		return r.fail(domain.ErrorCodeCapture, err)
	}

	r.mu.Lock()
	r.current.state = to
	r.mu.Unlock()

	r.events.RecorderStateChanged(to, reason)
	return nil
}

// Stop finalizes the take for customerID and appends it to the catalog. The
// microphone is released on every path and the recorder always ends idle.
func (r *Recorder) Stop(ctx context.Context, customerID string) (domain.RecordingArtifact, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	customerID = strings.TrimSpace(customerID)

	r.mu.Lock()
	active := r.current
	if active == nil || !active.stoppable() {
		state := domain.RecorderStateIdle
		if active != nil {
			state = active.state
		}
		r.mu.Unlock()
		return domain.RecordingArtifact{}, fmt.Errorf("%w: recorder is %s", domain.ErrInvalidState, state)
	}
	if customerID == "" {
		r.mu.Unlock()
		return domain.RecordingArtifact{}, fmt.Errorf("%w: customer id is required", domain.ErrBadRequest)
	}
	active.state = domain.RecorderStateFinalising
	r.mu.Unlock()
	r.events.RecorderStateChanged(domain.RecorderStateFinalising, domain.RecorderReasonFinalising)

	payload, err := r.device.Finish()
	if releaseErr := r.device.Release(); releaseErr != nil {
		r.logger.Warn("microphone release failed", zap.Error(releaseErr))
	}
	if err != nil {
		r.endSession(domain.RecorderReasonFinalizeFailed)
		return domain.RecordingArtifact{}, r.fail(domain.ErrorCodeFinalize, fmt.Errorf("finish capture: %w", err))
	}

	artifact := r.finalizer.Finalize(active.appointmentID, customerID, payload)
	if err := r.catalog.Insert(artifact); err != nil {
		if _, kept := r.catalog.Get(artifact.ID); !kept {
			r.endSession(domain.RecorderReasonFinalizeFailed)
			return domain.RecordingArtifact{}, r.fail(domain.ErrorCodeFinalize, fmt.Errorf("save recording: %w", err))
		}
		r.events.BackendError(domain.ErrorCodePersistence, err.Error())
	}

	r.logger.Info("recording saved",
		zap.String("recordingId", artifact.ID),
		zap.String("fileName", artifact.FileName),
		zap.Int64("size", artifact.Size),
		zap.Duration("duration", r.finalizer.now().Sub(active.startedAt)),
	)
	r.endSession(domain.RecorderReasonArtifactSaved)
	return artifact, nil
}

// Abort discards an active take without producing an artifact.
func (r *Recorder) Abort() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.state() == domain.RecorderStateIdle {
		return fmt.Errorf("%w: no active recording", domain.ErrInvalidState)
	}
	err := r.device.Release()
	r.endSession(domain.RecorderReasonMicCold)
	return err
}

func (r *Recorder) Status() domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.Status{State: domain.RecorderStateIdle, Message: r.lastErr}
	}
	return domain.Status{
		State:         r.current.state,
		Active:        true,
		AppointmentID: r.current.appointmentID,
		Message:       r.lastErr,
	}
}

func (r *Recorder) state() domain.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.RecorderStateIdle
	}
	return r.current.state
}

func (r *Recorder) endSession(reason domain.RecorderStateReason) {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
	r.events.RecorderStateChanged(domain.RecorderStateIdle, reason)
}

func (r *Recorder) fail(code domain.ErrorCode, err error) error {
	r.mu.Lock()
	r.lastErr = err.Error()
	r.mu.Unlock()

	level := r.logger.Warn
	if errors.Is(err, domain.ErrInvalidState) {
		level = r.logger.Debug
	}
	level("recorder operation failed", zap.String("code", string(code)), zap.Error(err))
	r.events.BackendError(code, err.Error())
	return err
}
