package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

func TestMicrophoneKeepsOnlyUnpausedAudio(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	mic := NewMicrophone(capture, ports.AudioConfig{SampleRate: 8000, Channels: 1}, 0, nil)

	if err := mic.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	session := capture.last()
	session.feed(t, []byte("pre-"))

	if err := mic.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	session.feed(t, []byte("aa"))
	if err := mic.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	session.feed(t, []byte("bb"))
	if err := mic.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	session.feed(t, []byte("cc"))

	payload, err := mic.Finish()
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if payload.ContentType != domain.ContentTypeWAV {
		t.Fatalf("unexpected content type %q", payload.ContentType)
	}
	if got := string(payload.Data[wavHeaderSize:]); got != "aacc" {
		t.Fatalf("expected paused audio to be dropped, got %q", got)
	}
	if payload.Size() != int64(wavHeaderSize+4) {
		t.Fatalf("unexpected size %d", payload.Size())
	}
	if mic.Held() {
		t.Fatalf("expected input released after finish")
	}
}

func TestMicrophoneBeginSucceedsAgainAfterFinish(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{}
	mic := NewMicrophone(capture, ports.AudioConfig{}, 0, nil)

	for i := 0; i < 2; i++ {
		if err := mic.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if err := mic.Begin(); err != nil {
			t.Fatalf("begin %d failed: %v", i, err)
		}
		if _, err := mic.Finish(); err != nil {
			t.Fatalf("finish %d failed: %v", i, err)
		}
	}
	if got := capture.startCount(); got != 2 {
		t.Fatalf("expected two capture sessions, got %d", got)
	}
}

func TestMicrophoneFinishReleasesOnStopError(t *testing.T) {
	t.Parallel()

	capture := &fakeCapture{stopErr: errors.New("device vanished")}
	mic := NewMicrophone(capture, ports.AudioConfig{}, 0, nil)

	if err := mic.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := mic.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := mic.Finish(); err == nil {
		t.Fatalf("expected finish error")
	}
	if mic.Held() {
		t.Fatalf("expected input released after failed finish")
	}

	capture.setStopErr(nil)
	if err := mic.Acquire(context.Background()); err != nil {
		t.Fatalf("expected re-acquire after failure, got %v", err)
	}
	if err := mic.Begin(); err != nil {
		t.Fatalf("expected begin after failure, got %v", err)
	}
	_ = mic.Release()
}

func TestMicrophoneAcquireErrors(t *testing.T) {
	t.Parallel()

	denied := NewMicrophone(&fakeCapture{startErr: errors.New("permission denied")}, ports.AudioConfig{}, 0, nil)
	if err := denied.Acquire(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if denied.Held() {
		t.Fatalf("expected nothing held after denied acquire")
	}

	mic := NewMicrophone(&fakeCapture{}, ports.AudioConfig{}, 0, nil)
	if err := mic.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer mic.Release()
	if err := mic.Acquire(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected second acquire to fail, got %v", err)
	}
}

func TestMicrophoneRejectsOutOfOrderCalls(t *testing.T) {
	t.Parallel()

	mic := NewMicrophone(&fakeCapture{}, ports.AudioConfig{}, 0, nil)

	if err := mic.Begin(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected begin without acquire to fail, got %v", err)
	}
	if _, err := mic.Finish(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected finish without acquire to fail, got %v", err)
	}
	if err := mic.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := mic.Pause(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected pause before begin to fail, got %v", err)
	}
	if err := mic.Begin(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := mic.Begin(); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if err := mic.Resume(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected resume while recording to fail, got %v", err)
	}
	if err := mic.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := mic.Pause(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected double pause to fail, got %v", err)
	}
	if err := mic.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := mic.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	t.Parallel()

	wav := EncodeWAV([]byte{1, 2, 3, 4}, 16000, 2)
	if len(wav) != wavHeaderSize+4 {
		t.Fatalf("unexpected length %d", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) || !bytes.Equal(wav[36:40], []byte("data")) {
		t.Fatalf("unexpected chunk ids: %q", wav[:40])
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != 40 {
		t.Fatalf("unexpected riff size %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 2 {
		t.Fatalf("unexpected channels %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 64000 {
		t.Fatalf("unexpected byte rate %d", got)
	}
	if got := binary.LittleEndian.Uint16(wav[32:34]); got != 4 {
		t.Fatalf("unexpected block align %d", got)
	}
}

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	sessions []*pipeSession
}

func (c *fakeCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	r, w := io.Pipe()
	s := &pipeSession{r: r, w: w, stopErr: c.stopErr}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *fakeCapture) last() *pipeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[len(c.sessions)-1]
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *fakeCapture) setStopErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopErr = err
}

type pipeSession struct {
	r       *io.PipeReader
	w       *io.PipeWriter
	stopErr error
}

// feed hands a chunk to the pump; the empty write returns only after the
// pump has looped back to Read, so the chunk has been handled.
func (s *pipeSession) feed(t *testing.T, chunk []byte) {
	t.Helper()
	if _, err := s.w.Write(chunk); err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if _, err := s.w.Write(nil); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}

func (s *pipeSession) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *pipeSession) Close() error               { return s.Stop() }
func (s *pipeSession) Stop() error {
	_ = s.w.Close()
	return s.stopErr
}
