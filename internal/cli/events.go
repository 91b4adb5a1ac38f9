package cli

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/output"
)

// EventSink prints backend events for a terminal user.
type EventSink struct {
	mu     sync.Mutex
	f      *output.Formatter
	logger *zap.Logger
	follow atomic.Bool
}

func NewEventSink(f *output.Formatter, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{f: f, logger: logger}
}

// Follow toggles printing of every artifact change.
func (s *EventSink) Follow(on bool) {
	s.follow.Store(on)
}

func (s *EventSink) RecorderStateChanged(state domain.RecorderState, reason domain.RecorderStateReason) {
	s.logger.Debug("recorder state", zap.String("state", string(state)), zap.String("reason", string(reason)))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.RecordingState(state, reasonMessage(reason))
}

func (s *EventSink) ArtifactChanged(artifact domain.RecordingArtifact) {
	s.logger.Debug("artifact changed",
		zap.String("recordingId", artifact.ID),
		zap.String("state", string(artifact.State)),
	)
	if !s.follow.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.ArtifactChanged(artifact)
}

func (s *EventSink) BackendError(code domain.ErrorCode, detail string) {
	s.logger.Warn("backend error", zap.String("code", string(code)), zap.String("detail", detail))
	msg := errorMessage(code, detail)
	if detail != "" && msg != detail {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f.Error(msg)
}

func reasonMessage(reason domain.RecorderStateReason) string {
	switch reason {
	case domain.RecorderReasonMicCold:
		return "Mic cold"
	case domain.RecorderReasonRecordingStarted:
		return "Recording started"
	case domain.RecorderReasonPaused:
		return "Recording paused"
	case domain.RecorderReasonResumed:
		return "Recording resumed"
	case domain.RecorderReasonFinalising:
		return "Recording stopped. Saving..."
	case domain.RecorderReasonArtifactSaved:
		return "Recording saved"
	case domain.RecorderReasonFinalizeFailed:
		return "Saving the recording failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCapture:
		return "Microphone issue"
	case domain.ErrorCodeFinalize:
		return "Could not finish the recording"
	case domain.ErrorCodePersistence:
		return "Could not save to local storage"
	case domain.ErrorCodeUpload:
		return "Upload failed"
	case domain.ErrorCodeDelivery:
		return "Delivery failed"
	case domain.ErrorCodeReconcile:
		return "Lost the delivery service feed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
