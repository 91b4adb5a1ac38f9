package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"cockpit/internal/domain"
	"cockpit/internal/ports"
)

// Subscribe opens the service event feed. The stream ends when ctx is done,
// Close is called, or the connection drops.
func (c *Client) Subscribe(ctx context.Context) (ports.EventStream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event feed: %w", err)
	}

	stream := &feedStream{
		conn:    conn,
		events:  make(chan domain.RemoteEvent, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go stream.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stream.done:
		}
	}()
	return stream, nil
}

type feedStream struct {
	conn *websocket.Conn

	events  chan domain.RemoteEvent
	done    chan struct{}
	closing chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (s *feedStream) Events() <-chan domain.RemoteEvent {
	return s.events
}

func (s *feedStream) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *feedStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *feedStream) readLoop() {
	defer func() {
		close(s.events)
		close(s.done)
		_ = s.conn.Close()
	}()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.setErr(fmt.Errorf("failed to read feed event: %w", err))
			}
			return
		}

		var event domain.RemoteEvent
		if err := json.Unmarshal(payload, &event); err != nil || event.RecordingID == "" {
			continue
		}
		select {
		case s.events <- event:
		case <-s.closing:
			return
		}
	}
}

func (s *feedStream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *feedStream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
