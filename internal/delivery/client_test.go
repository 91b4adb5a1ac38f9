package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cockpit/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientCreateSendsArtifact(t *testing.T) {
	t.Parallel()

	storedAt := time.Date(2026, 2, 1, 10, 0, 1, 0, time.UTC)
	var got domain.RecordingArtifact
	mux := http.NewServeMux()
	mux.HandleFunc("POST /recordings", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, domain.CreateReceipt{
			Acknowledged: true, InsertedID: got.ID, StoredAt: storedAt, Mode: domain.StorageModePostgres, FileID: "f-1",
		})
	})
	client := newTestClient(t, mux)

	artifact := domain.RecordingArtifact{ID: "rec-1", CustomerID: "cust-1", FileName: "a.wav", Payload: "data:audio/wav;base64,AA==", Size: 1, State: domain.SyncStateUploading}
	receipt, err := client.Create(context.Background(), artifact)
	require.NoError(t, err)

	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, artifact.Payload, got.Payload)
	assert.True(t, receipt.DurablyStored())
	assert.True(t, receipt.StoredAt.Equal(storedAt))
}

func TestClientMapsStatusErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /recordings", func(w http.ResponseWriter, r *http.Request) {
		var body patchBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.CustomerID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "recordingId and customerId are required"})
			return
		}
		writeJSON(w, http.StatusNotFound, errorBody{Error: "recording not found"})
	})
	mux.HandleFunc("GET /recordings/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, errorBody{Error: "audio not available yet"})
	})
	client := newTestClient(t, mux)

	_, err := client.PatchRecipient(context.Background(), "rec-1", "cust-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "recording not found", statusErr.Message)

	_, err = client.PatchRecipient(context.Background(), "rec-1", "")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	_, err = client.Fetch(context.Background(), "rec-1")
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestClientPatchReturnsDeliveredAt(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /recordings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, patchResult{DeliveredAt: at})
	})
	client := newTestClient(t, mux)

	got, err := client.PatchRecipient(context.Background(), "rec-1", "cust-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}

func TestClientFetchReadsAudioAndHeaders(t *testing.T) {
	t.Parallel()

	recordedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /recordings/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rec 1", r.PathValue("id"))
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set(HeaderRecordedAt, recordedAt.Format(time.RFC3339Nano))
		w.Header().Set(HeaderFileName, "appointment-appt-1-1.wav")
		_, _ = w.Write([]byte("RIFF...."))
	})
	client := newTestClient(t, mux)

	download, err := client.Fetch(context.Background(), "rec 1")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF...."), download.Data)
	assert.Equal(t, "audio/wav", download.ContentType)
	assert.Equal(t, "appointment-appt-1-1.wav", download.FileName)
	assert.True(t, download.RecordedAt.Equal(recordedAt))
}

func TestClientListDecodesListing(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /recordings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.RemoteListing{
			Count:      1,
			Recordings: []domain.StoredRecording{{ID: "rec-1", CustomerID: "cust-1"}},
			Mode:       domain.StorageModeMemory,
		})
	})
	client := newTestClient(t, mux)

	listing, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, listing.Count)
	assert.Equal(t, domain.StorageModeMemory, listing.Mode)
	require.Len(t, listing.Recordings, 1)
	assert.Equal(t, "rec-1", listing.Recordings[0].ID)
}

func TestClientCreateRequiresAcknowledgement(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /recordings", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, domain.CreateReceipt{})
	})
	client := newTestClient(t, mux)

	_, err := client.Create(context.Background(), domain.RecordingArtifact{ID: "rec-1"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBuildFeedURL(t *testing.T) {
	t.Parallel()

	got, err := buildFeedURL("https://crm.example.com/api")
	require.NoError(t, err)
	assert.Equal(t, "wss://crm.example.com/api/ws/recordings", got)

	got, err = buildFeedURL("http://127.0.0.1:9090")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9090/ws/recordings", got)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestSubscribeStreamsEvents(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/recordings", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteJSON(domain.RemoteEvent{Type: domain.RemoteEventDelivered, RecordingID: "rec-1", CustomerID: "cust-1", DeliveredAt: &at})
		_, _, _ = conn.ReadMessage()
	})
	client := newTestClient(t, mux)

	stream, err := client.Subscribe(context.Background())
	require.NoError(t, err)

	select {
	case event := <-stream.Events():
		assert.Equal(t, domain.RemoteEventDelivered, event.Type)
		assert.Equal(t, "rec-1", event.RecordingID)
		require.NotNil(t, event.DeliveredAt)
		assert.True(t, event.DeliveredAt.Equal(at))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Wait())
}

func TestSubscribeReportsDroppedConnection(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/recordings", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.UnderlyingConn().Close()
	})
	client := newTestClient(t, mux)

	stream, err := client.Subscribe(context.Background())
	require.NoError(t, err)

	for range stream.Events() {
	}
	assert.Error(t, stream.Wait())
}
