package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

// Uploader drives LOCAL and FAILED artifacts to the delivery service with at
// most one upload in flight per artifact id.
type Uploader struct {
	catalog ports.RecordingCatalog
	client  ports.DeliveryClient
	events  ports.EventSink
	logger  *zap.Logger
	sweep   time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup

	kick chan struct{}
}

func NewUploader(
	catalog ports.RecordingCatalog,
	client ports.DeliveryClient,
	events ports.EventSink,
	sweep time.Duration,
	logger *zap.Logger,
) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		catalog:  catalog,
		client:   client,
		events:   events,
		logger:   logger,
		sweep:    sweep,
		inFlight: make(map[string]struct{}),
		kick:     make(chan struct{}, 1),
	}
}

// Notify requests a scan from Run when artifact is eligible for upload. It
// never blocks, so it is safe to call from catalog change listeners. The
// FAILED change made by an upload arrives while the id is still in flight
// and does not retrigger, so a failing service is retried on the next
// mutation or sweep rather than in a tight loop.
func (u *Uploader) Notify(artifact domain.RecordingArtifact) {
	// Claims notify with UPLOADING while u.mu is held; return before locking.
	if !artifact.State.NeedsUpload() || u.InFlight(artifact.ID) {
		return
	}
	select {
	case u.kick <- struct{}{}:
	default:
	}
}

// Run scans on every notification and on the sweep interval until ctx is
// done, then waits for started uploads to finish.
func (u *Uploader) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if u.sweep > 0 {
		ticker := time.NewTicker(u.sweep)
		defer ticker.Stop()
		tick = ticker.C
	}

	u.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			u.Wait()
			return nil
		case <-u.kick:
			u.Scan(ctx)
		case <-tick:
			u.Scan(ctx)
		}
	}
}

// Scan claims every eligible artifact and starts its upload. It returns the
// number of uploads started.
func (u *Uploader) Scan(ctx context.Context) int {
	claimed := u.claim()
	for _, artifact := range claimed {
		u.wg.Add(1)
		go u.upload(context.WithoutCancel(ctx), artifact)
	}
	return len(claimed)
}

// Wait blocks until every started upload has finished.
func (u *Uploader) Wait() {
	u.wg.Wait()
}

// Drain waits for started uploads like Wait but gives up when ctx is done.
// Uploads still running keep their UPLOADING state, which the catalog turns
// into FAILED on the next start.
func (u *Uploader) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether an upload for id is outstanding.
func (u *Uploader) InFlight(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.inFlight[id]
	return ok
}

// claim checks the in-flight set and moves the artifact to UPLOADING under
// one lock, so concurrent scans cannot both claim an id.
func (u *Uploader) claim() []domain.RecordingArtifact {
	u.mu.Lock()
	defer u.mu.Unlock()

	var claimed []domain.RecordingArtifact
	for _, artifact := range u.catalog.Pending() {
		if _, busy := u.inFlight[artifact.ID]; busy {
			continue
		}
		next, err := u.catalog.Transition(artifact.ID, artifact.State, domain.SyncStateUploading)
		if err != nil {
			if next.ID == "" {
				u.logger.Debug("skipping artifact", zap.String("recordingId", artifact.ID), zap.Error(err))
				continue
			}
			// Applied in memory; the store catches up on the next write.
			u.logger.Warn("claim not persisted", zap.String("recordingId", artifact.ID), zap.Error(err))
		}
		u.inFlight[artifact.ID] = struct{}{}
		claimed = append(claimed, next)
	}
	return claimed
}

func (u *Uploader) upload(ctx context.Context, artifact domain.RecordingArtifact) {
	defer u.wg.Done()
	defer u.release(artifact.ID)

	log := u.logger.With(zap.String("recordingId", artifact.ID))
	receipt, err := u.client.Create(ctx, artifact)
	if err != nil {
		if _, markErr := u.catalog.Transition(artifact.ID, domain.SyncStateUploading, domain.SyncStateFailed); markErr != nil {
			log.Warn("failed to mark upload failed", zap.Error(markErr))
		}
		detail := fmt.Errorf("%w: %s: %v", domain.ErrUploadFailed, artifact.ID, err)
		log.Warn("upload failed", zap.Error(err))
		u.events.BackendError(domain.ErrorCodeUpload, detail.Error())
		return
	}

	if _, err := u.catalog.MarkSynced(artifact.ID, receipt.DurablyStored()); err != nil {
		log.Warn("failed to mark upload synced", zap.Error(err))
		u.events.BackendError(domain.ErrorCodePersistence, err.Error())
		return
	}
	log.Info("upload synced",
		zap.String("mode", string(receipt.Mode)),
		zap.String("fileId", receipt.FileID),
		zap.Bool("payloadCleared", receipt.DurablyStored()),
	)
}

func (u *Uploader) release(id string) {
	u.mu.Lock()
	delete(u.inFlight, id)
	u.mu.Unlock()
}
