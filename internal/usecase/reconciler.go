package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

var errFeedClosed = errors.New("event feed closed")

// Reconciler applies delivery service events to the local catalog so that
// deliveries made elsewhere show up here.
type Reconciler struct {
	subscriber ports.EventSubscriber
	catalog    ports.RecordingCatalog
	events     ports.EventSink
	logger     *zap.Logger
	retry      time.Duration
}

func NewReconciler(subscriber ports.EventSubscriber, catalog ports.RecordingCatalog, events ports.EventSink, retry time.Duration, logger *zap.Logger) *Reconciler {
	if retry <= 0 {
		retry = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{subscriber: subscriber, catalog: catalog, events: events, logger: logger, retry: retry}
}

// Run follows the event feed until ctx is done, resubscribing after drops.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		err := r.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("event feed dropped", zap.Error(err), zap.Duration("retryIn", r.retry))
		r.events.BackendError(domain.ErrorCodeReconcile, err.Error())

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (r *Reconciler) follow(ctx context.Context) error {
	stream, err := r.subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream.Events():
			if !ok {
				if err := stream.Wait(); err != nil {
					return err
				}
				return errFeedClosed
			}
			r.Apply(event)
		}
	}
}

// Apply reconciles one event and reports whether the catalog changed.
func (r *Reconciler) Apply(event domain.RemoteEvent) bool {
	log := r.logger.With(zap.String("recordingId", event.RecordingID), zap.String("type", string(event.Type)))

	switch event.Type {
	case domain.RemoteEventDelivered:
		artifact, ok := r.catalog.Get(event.RecordingID)
		if !ok || artifact.Delivered() || event.DeliveredAt == nil {
			return false
		}
		if _, err := r.catalog.MarkDelivered(event.RecordingID, event.CustomerID, *event.DeliveredAt); err != nil {
			log.Warn("failed to apply remote delivery", zap.Error(err))
			return false
		}
		log.Info("applied remote delivery", zap.String("customerId", event.CustomerID))
		return true
	case domain.RemoteEventStored:
		log.Debug("recording stored remotely")
		return false
	default:
		log.Debug("ignoring unknown event")
		return false
	}
}
