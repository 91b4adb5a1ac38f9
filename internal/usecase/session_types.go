package usecase

import (
	"time"

	"cockpit/internal/domain"
)

type activeSession struct {
	appointmentID string
	startedAt     time.Time
	state         domain.RecorderState
}

func (s *activeSession) stoppable() bool {
	return s.state == domain.RecorderStateRecording || s.state == domain.RecorderStatePaused
}
