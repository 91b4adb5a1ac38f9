package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cockpit/internal/audio"
	"cockpit/internal/catalog"
	"cockpit/internal/config"
	"cockpit/internal/delivery"
	"cockpit/internal/directory"
	"cockpit/internal/ledger"
	"cockpit/internal/localstore"
	"cockpit/internal/ports"
	"cockpit/internal/server"
	"cockpit/internal/usecase"
)

const feedRetry = 5 * time.Second

// Cockpit is the assembled client runtime graph.
type Cockpit struct {
	Config     config.Cockpit
	Store      ports.LocalStore
	Catalog    *catalog.Catalog
	Client     *delivery.Client
	Directory  *directory.Directory
	Recorder   *usecase.Recorder
	Uploader   *usecase.Uploader
	Deliverer  *usecase.Deliverer
	Playback   *usecase.Playback
	Reconciler *usecase.Reconciler
}

// Close waits for started uploads and releases the local store.
func (c *Cockpit) Close() error {
	c.Uploader.Wait()
	return c.Store.Close()
}

// BuildCockpit wires the client services. Every catalog change is forwarded
// to the uploader and to events.
func BuildCockpit(cfg config.Cockpit, events ports.EventSink, logger *zap.Logger) (*Cockpit, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		return nil, err
	}

	client, err := delivery.NewClient(delivery.Config{
		BaseURL:    cfg.Delivery.BaseURL,
		Timeout:    cfg.Delivery.Timeout,
		RetryCount: cfg.Delivery.RetryCount,
	})
	if err != nil {
		return nil, err
	}

	store, err := localstore.Open(cfg.LocalStore.Driver, cfg.LocalStore.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	cat, err := catalog.Open(store, logger.Named("catalog"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	mic := audio.NewMicrophone(
		audio.NewFFmpegCapture(cfg.Audio.RecorderCommand, audio.WithLogger(logger.Named("ffmpeg"))),
		ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		cfg.Audio.ChunkSize,
		logger.Named("microphone"),
	)

	uploader := usecase.NewUploader(cat, client, events, cfg.Uploader.SweepInterval, logger.Named("uploader"))
	cat.OnChange(uploader.Notify)
	cat.OnChange(events.ArtifactChanged)

	return &Cockpit{
		Config:     cfg,
		Store:      store,
		Catalog:    cat,
		Client:     client,
		Directory:  dir,
		Recorder:   usecase.NewRecorder(mic, cat, events, logger.Named("recorder")),
		Uploader:   uploader,
		Deliverer:  usecase.NewDeliverer(cat, client, events, logger.Named("delivery")),
		Playback:   usecase.NewPlayback(cat, client),
		Reconciler: usecase.NewReconciler(client, cat, events, feedRetry, logger.Named("reconciler")),
	}, nil
}

// Service is the assembled delivery service graph.
type Service struct {
	Config config.Service
	Ledger ledger.Ledger
	Server *server.Server
}

// BuildService opens the configured ledger and routes it.
func BuildService(ctx context.Context, cfg config.Service, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := ledger.Open(ctx, cfg.Store, logger.Named("ledger"))
	if err != nil {
		return nil, err
	}
	logger.Info("ledger ready", zap.String("mode", string(store.Mode())))

	return &Service{
		Config: cfg,
		Ledger: store,
		Server: server.New(store, cfg.CORS.Origins(), logger.Named("http")),
	}, nil
}

// Close disconnects feed subscribers and the ledger.
func (s *Service) Close() error {
	s.Server.Hub().Close()
	return s.Ledger.Close()
}
