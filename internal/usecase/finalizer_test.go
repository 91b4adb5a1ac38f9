package usecase

import (
	"strings"
	"testing"
	"time"

	"cockpit/internal/domain"
)

func TestFinalizeBuildsLocalArtifact(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.FixedZone("IST", 5*3600+1800))
	f := artifactFinalizer{
		now:   func() time.Time { return at },
		newID: func() string { return "rec-fixed" },
	}

	artifact := f.Finalize("appt-2", "cust-1", domain.AudioPayload{Data: []byte("RIFF....")})
	if artifact.ID != "rec-fixed" || artifact.State != domain.SyncStateLocal || artifact.Delivered() {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	if artifact.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC createdAt, got %s", artifact.CreatedAt.Location())
	}
	if want := "appointment-appt-2-" + "1778031489000" + ".wav"; artifact.FileName != want {
		t.Fatalf("expected file name %q, got %q", want, artifact.FileName)
	}
	if !strings.HasPrefix(artifact.Payload, "data:audio/wav;base64,") {
		t.Fatalf("unexpected payload prefix: %q", artifact.Payload)
	}

	data, contentType, err := decodePayload(artifact.Payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(data) != "RIFF...." || contentType != domain.ContentTypeWAV || artifact.Size != int64(len(data)) {
		t.Fatalf("unexpected decoded payload %q %q size=%d", data, contentType, artifact.Size)
	}
}

func TestFileNameUsesUnassignedToken(t *testing.T) {
	t.Parallel()

	got := fileName("", time.UnixMilli(42))
	if got != "appointment-unassigned-42.wav" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, _, err := decodePayload("not a data uri"); err == nil {
		t.Fatalf("expected decode error")
	}
}
