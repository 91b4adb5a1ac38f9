package usecase

import (
	"context"
	"fmt"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Playback resolves recording audio, preferring the copy kept on this machine.
type Playback struct {
	catalog ports.RecordingCatalog
	client  ports.DeliveryClient
}

func NewPlayback(catalog ports.RecordingCatalog, client ports.DeliveryClient) *Playback {
	return &Playback{catalog: catalog, client: client}
}

func (p *Playback) Fetch(ctx context.Context, recordingID string) (domain.AudioDownload, error) {
	if artifact, ok := p.catalog.Get(recordingID); ok && artifact.Payload != "" {
		data, contentType, err := decodePayload(artifact.Payload)
		if err == nil {
			return domain.AudioDownload{
				Data:        data,
				ContentType: contentType,
				FileName:    artifact.FileName,
				RecordedAt:  artifact.CreatedAt,
				Source:      SourceLocal,
			}, nil
		}
		if artifact.State != domain.SyncStateSynced {
			return domain.AudioDownload{}, fmt.Errorf("%w: %v", domain.ErrPersistenceCorrupt, err)
		}
	}

	download, err := p.client.Fetch(ctx, recordingID)
	if err != nil {
		return domain.AudioDownload{}, err
	}
	download.Source = SourceRemote
	return download, nil
}
