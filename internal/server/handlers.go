package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"cockpit/internal/delivery"
	"cockpit/internal/domain"
	"cockpit/internal/ledger"
)

type deliverRequest struct {
	RecordingID string `json:"recordingId" binding:"required"`
	CustomerID  string `json:"customerId" binding:"required"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readiness(c *gin.Context) {
	if err := s.ledger.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("ledger not ready", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "mode": s.ledger.Mode()})
}

func (s *Server) createRecording(c *gin.Context) {
	var artifact domain.RecordingArtifact
	if err := c.ShouldBindJSON(&artifact); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(artifact.ID) == "" {
		abortWithError(c, http.StatusBadRequest, errors.New("id is required"))
		return
	}

	upload, err := toUpload(artifact)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	receipt, err := s.ledger.Upsert(c.Request.Context(), upload)
	if err != nil {
		s.logger.Error("failed to store recording", zap.String("recordingId", artifact.ID), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	storedAt := receipt.StoredAt
	s.hub.Broadcast(domain.RemoteEvent{
		Type:        domain.RemoteEventStored,
		RecordingID: artifact.ID,
		CustomerID:  artifact.CustomerID,
		StoredAt:    &storedAt,
	})
	s.logger.Info("recording stored",
		zap.String("recordingId", artifact.ID),
		zap.Int("bytes", len(upload.Audio)),
		zap.String("mode", string(receipt.Mode)),
	)
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) deliverRecording(c *gin.Context) {
	var req deliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errors.New("recordingId and customerId are required"))
		return
	}

	rec, err := s.ledger.Deliver(c.Request.Context(), req.RecordingID, req.CustomerID, s.now())
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}

	s.hub.Broadcast(domain.RemoteEvent{
		Type:        domain.RemoteEventDelivered,
		RecordingID: rec.ID,
		CustomerID:  rec.CustomerID,
		DeliveredAt: rec.DeliveredAt,
	})
	c.JSON(http.StatusOK, gin.H{"deliveredAt": rec.DeliveredAt})
}

func (s *Server) listRecordings(c *gin.Context) {
	recs, err := s.ledger.Recent(c.Request.Context(), ledger.DefaultRecentLimit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, domain.RemoteListing{
		Count:      len(recs),
		Recordings: recs,
		Mode:       s.ledger.Mode(),
	})
}

func (s *Server) downloadRecording(c *gin.Context) {
	audio, err := s.ledger.Audio(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}

	contentType := audio.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeWAV
	}
	if !audio.RecordedAt.IsZero() {
		c.Header(delivery.HeaderRecordedAt, audio.RecordedAt.UTC().Format(time.RFC3339Nano))
	}
	if audio.FileName != "" {
		c.Header(delivery.HeaderFileName, audio.FileName)
	}
	c.Data(http.StatusOK, contentType, audio.Data)
}

// toUpload decodes the artifact's data URI payload. An artifact without a
// payload is stored as metadata only.
func toUpload(artifact domain.RecordingArtifact) (ledger.Upload, error) {
	upload := ledger.Upload{
		Recording: domain.StoredRecording{
			ID:            artifact.ID,
			AppointmentID: artifact.AppointmentID,
			CustomerID:    artifact.CustomerID,
			CreatedAt:     artifact.CreatedAt.UTC(),
			FileName:      artifact.FileName,
			Size:          artifact.Size,
			State:         domain.SyncStateSynced,
			DeliveredAt:   artifact.DeliveredAt,
		},
	}
	if artifact.Payload == "" {
		return upload, nil
	}

	decoded, err := dataurl.DecodeString(artifact.Payload)
	if err != nil {
		return ledger.Upload{}, errors.New("payload is not a valid data URI")
	}
	upload.Audio = decoded.Data
	upload.ContentType = decoded.MediaType.ContentType()
	upload.Recording.Size = int64(len(decoded.Data))
	return upload, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
