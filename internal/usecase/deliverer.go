package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

// Deliverer sends recordings to their recipient through the delivery service.
type Deliverer struct {
	catalog ports.RecordingCatalog
	client  ports.DeliveryClient
	events  ports.EventSink
	logger  *zap.Logger
}

func NewDeliverer(catalog ports.RecordingCatalog, client ports.DeliveryClient, events ports.EventSink, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{catalog: catalog, client: client, events: events, logger: logger}
}

// Deliver patches the recipient of recordingID on the service and records
// the delivery locally. An empty customerID delivers to the current
// recipient. Unknown ids fail with ErrNotFound before any network call.
func (d *Deliverer) Deliver(ctx context.Context, recordingID string, customerID string) (domain.RecordingArtifact, error) {
	recordingID = strings.TrimSpace(recordingID)
	artifact, ok := d.catalog.Get(recordingID)
	if !ok {
		return domain.RecordingArtifact{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	if artifact.Delivered() {
		return domain.RecordingArtifact{}, domain.ErrAlreadyDelivered
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		customerID = artifact.CustomerID
	}

	deliveredAt, err := d.client.PatchRecipient(ctx, recordingID, customerID)
	if err != nil {
		err = fmt.Errorf("deliver %s: %w", recordingID, err)
		d.logger.Warn("delivery failed", zap.Error(err))
		d.events.BackendError(domain.ErrorCodeDelivery, err.Error())
		return domain.RecordingArtifact{}, err
	}

	updated, err := d.catalog.MarkDelivered(recordingID, customerID, deliveredAt)
	switch {
	case errors.Is(err, domain.ErrAlreadyDelivered):
		// The event feed applied this delivery while the patch was in flight.
		current, ok := d.catalog.Get(recordingID)
		if !ok {
			return domain.RecordingArtifact{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
		}
		updated = current
	case err != nil:
		d.events.BackendError(domain.ErrorCodePersistence, err.Error())
		if updated.ID == "" {
			return domain.RecordingArtifact{}, err
		}
	}
	d.logger.Info("recording delivered",
		zap.String("recordingId", recordingID),
		zap.String("customerId", customerID),
		zap.Time("deliveredAt", deliveredAt),
	)
	return updated, nil
}

// Assign changes the recipient of an undelivered recording without sending it.
func (d *Deliverer) Assign(recordingID string, customerID string) (domain.RecordingArtifact, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.RecordingArtifact{}, fmt.Errorf("%w: customer id is required", domain.ErrBadRequest)
	}
	updated, err := d.catalog.UpdateRecipient(strings.TrimSpace(recordingID), customerID)
	if err != nil && updated.ID == "" {
		return domain.RecordingArtifact{}, err
	}
	if err != nil {
		d.events.BackendError(domain.ErrorCodePersistence, err.Error())
	}
	return updated, nil
}
