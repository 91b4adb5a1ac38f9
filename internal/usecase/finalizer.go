package usecase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"

	"cockpit/internal/domain"
)

// artifactFinalizer turns a finished capture into a LOCAL artifact.
type artifactFinalizer struct {
	now   func() time.Time
	newID func() string
}

func newArtifactFinalizer() artifactFinalizer {
	return artifactFinalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (f artifactFinalizer) Finalize(appointmentID, customerID string, payload domain.AudioPayload) domain.RecordingArtifact {
	createdAt := f.now().UTC()
	contentType := payload.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeWAV
	}
	return domain.RecordingArtifact{
		ID:            f.newID(),
		AppointmentID: appointmentID,
		CustomerID:    customerID,
		CreatedAt:     createdAt,
		FileName:      fileName(appointmentID, createdAt),
		Payload:       dataurl.New(payload.Data, contentType).String(),
		Size:          payload.Size(),
		State:         domain.SyncStateLocal,
	}
}

func fileName(appointmentID string, createdAt time.Time) string {
	if appointmentID == "" {
		appointmentID = domain.UnassignedAppointment
	}
	return fmt.Sprintf("appointment-%s-%d.wav", appointmentID, createdAt.UnixMilli())
}

// decodePayload reverses the data URI encoding used for local persistence.
func decodePayload(payload string) ([]byte, string, error) {
	du, err := dataurl.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode local payload: %w", err)
	}
	return du.Data, du.ContentType(), nil
}
