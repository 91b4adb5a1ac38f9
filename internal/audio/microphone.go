package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

const defaultChunkSize = 4096

// Microphone is the capture device backed by a platform AudioCapture. The
// input is opened on Acquire and drained continuously; PCM is kept only
// between Begin and Finish while not paused.
type Microphone struct {
	capture   ports.AudioCapture
	cfg       ports.AudioConfig
	chunkSize int
	logger    *zap.Logger

	mu        sync.Mutex
	session   ports.AudioSession
	cancel    context.CancelFunc
	pumpDone  chan struct{}
	pumpErr   error
	capturing bool
	paused    bool
	pcm       bytes.Buffer
}

func NewMicrophone(capture ports.AudioCapture, cfg ports.AudioConfig, chunkSize int, logger *zap.Logger) *Microphone {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Microphone{
		capture:   capture,
		cfg:       withAudioDefaults(cfg),
		chunkSize: chunkSize,
		logger:    logger,
	}
}

func (m *Microphone) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return fmt.Errorf("%w: input already held", domain.ErrDeviceUnavailable)
	}

	// The input outlives the request that opened it.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session, err := m.capture.Start(sessionCtx, m.cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	m.session = session
	m.cancel = cancel
	m.pumpDone = make(chan struct{})
	m.pumpErr = nil
	m.capturing = false
	m.paused = false
	m.pcm.Reset()

	go m.pump(session, m.pumpDone)
	return nil
}

func (m *Microphone) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return fmt.Errorf("%w: input not acquired", domain.ErrInvalidState)
	}
	if m.capturing {
		return domain.ErrAlreadyActive
	}
	if m.pumpErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, m.pumpErr)
	}
	m.capturing = true
	m.paused = false
	m.pcm.Reset()
	return nil
}

func (m *Microphone) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.capturing || m.paused {
		return fmt.Errorf("%w: cannot pause", domain.ErrInvalidState)
	}
	m.paused = true
	return nil
}

func (m *Microphone) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.capturing || !m.paused {
		return fmt.Errorf("%w: cannot resume", domain.ErrInvalidState)
	}
	m.paused = false
	return nil
}

// Finish stops the input and returns the take as WAV. The input is released
// on every path.
func (m *Microphone) Finish() (domain.AudioPayload, error) {
	m.mu.Lock()
	held := m.session != nil
	began := m.capturing
	m.mu.Unlock()

	if !held {
		return domain.AudioPayload{}, fmt.Errorf("%w: input not acquired", domain.ErrInvalidState)
	}

	stopErr := m.teardown()

	m.mu.Lock()
	pcm := bytes.Clone(m.pcm.Bytes())
	pumpErr := m.pumpErr
	m.resetTakeLocked()
	m.mu.Unlock()

	switch {
	case !began:
		return domain.AudioPayload{}, fmt.Errorf("%w: capture never began", domain.ErrInvalidState)
	case stopErr != nil:
		return domain.AudioPayload{}, fmt.Errorf("stop capture: %w", stopErr)
	case pumpErr != nil:
		return domain.AudioPayload{}, fmt.Errorf("read capture: %w", pumpErr)
	}

	m.logger.Debug("capture finished", zap.Int("pcmBytes", len(pcm)))
	return domain.AudioPayload{
		Data:        EncodeWAV(pcm, m.cfg.SampleRate, m.cfg.Channels),
		ContentType: domain.ContentTypeWAV,
	}, nil
}

// Release frees the input without producing a payload. It is a no-op when
// nothing is held.
func (m *Microphone) Release() error {
	err := m.teardown()
	m.mu.Lock()
	m.resetTakeLocked()
	m.mu.Unlock()
	return err
}

// Held reports whether the input handle is open.
func (m *Microphone) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *Microphone) teardown() error {
	m.mu.Lock()
	session, cancel, done := m.session, m.cancel, m.pumpDone
	m.mu.Unlock()

	if session == nil {
		return nil
	}

	err := session.Stop()
	<-done
	cancel()

	m.mu.Lock()
	if m.session == session {
		m.session = nil
		m.cancel = nil
		m.pumpDone = nil
	}
	m.mu.Unlock()
	return err
}

func (m *Microphone) resetTakeLocked() {
	m.capturing = false
	m.paused = false
	m.pcm.Reset()
}

func (m *Microphone) pump(session ports.AudioSession, done chan struct{}) {
	defer close(done)

	buf := make([]byte, m.chunkSize)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			m.mu.Lock()
			if m.capturing && !m.paused {
				m.pcm.Write(buf[:n])
			}
			m.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				m.logger.Warn("audio capture read failed", zap.Error(err))
				m.mu.Lock()
				m.pumpErr = err
				m.mu.Unlock()
			}
			return
		}
	}
}
