package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"cockpit/internal/catalog"
	"cockpit/internal/domain"
	"cockpit/internal/localstore"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(&memStore{data: map[string][]byte{}}, nil)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	return c
}

func seedArtifact(t *testing.T, c *catalog.Catalog, id string, state domain.SyncState) domain.RecordingArtifact {
	t.Helper()
	a := domain.RecordingArtifact{
		ID:            id,
		AppointmentID: "appt-1",
		CustomerID:    "cust-1",
		CreatedAt:     time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		FileName:      "appointment-appt-1-1769940000000.wav",
		Payload:       "data:audio/wav;base64,UklGRgAAAAA=",
		Size:          8,
		State:         state,
	}
	if err := c.Insert(a); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return a
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, localstore.ErrKeyNotFound
	}
	return v, nil
}

func (s *memStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Close() error { return nil }

type fakeDevice struct {
	mu          sync.Mutex
	held        bool
	capturing   bool
	paused      bool
	acquires    int
	acquireErr  error
	finishErr   error
	data        []byte
	releaseCall int
}

func (d *fakeDevice) Acquire(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquireErr != nil {
		return d.acquireErr
	}
	if d.held {
		return domain.ErrDeviceUnavailable
	}
	d.held = true
	d.acquires++
	return nil
}

func (d *fakeDevice) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.held {
		return domain.ErrInvalidState
	}
	if d.capturing {
		return domain.ErrAlreadyActive
	}
	d.capturing = true
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.capturing || d.paused {
		return domain.ErrInvalidState
	}
	d.paused = true
	return nil
}

func (d *fakeDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.capturing || !d.paused {
		return domain.ErrInvalidState
	}
	d.paused = false
	return nil
}

func (d *fakeDevice) Finish() (domain.AudioPayload, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held, d.capturing, d.paused = false, false, false
	if d.finishErr != nil {
		return domain.AudioPayload{}, d.finishErr
	}
	return domain.AudioPayload{Data: d.data, ContentType: domain.ContentTypeWAV}, nil
}

func (d *fakeDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseCall++
	d.held, d.capturing, d.paused = false, false, false
	return nil
}

func (d *fakeDevice) isHeld() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.held
}

// fakeService stands in for the delivery service; it upserts by id.
type fakeService struct {
	mu          sync.Mutex
	records     map[string]domain.RecordingArtifact
	creates     int
	patches     int
	active      map[string]int
	maxActive   int
	createErrs  []error
	gate        chan struct{}
	mode        domain.StorageMode
	deliveredAt time.Time
	patchErr    error
	fetch       domain.AudioDownload
	fetchErr    error
	onPatch     func()
}

func newFakeService() *fakeService {
	return &fakeService{
		records:     map[string]domain.RecordingArtifact{},
		active:      map[string]int{},
		mode:        domain.StorageModeMemory,
		deliveredAt: time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeService) Create(_ context.Context, artifact domain.RecordingArtifact) (domain.CreateReceipt, error) {
	s.mu.Lock()
	s.creates++
	s.active[artifact.ID]++
	if s.active[artifact.ID] > s.maxActive {
		s.maxActive = s.active[artifact.ID]
	}
	gate := s.gate
	var err error
	if len(s.createErrs) > 0 {
		err, s.createErrs = s.createErrs[0], s.createErrs[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[artifact.ID]--
	if err != nil {
		return domain.CreateReceipt{}, err
	}
	s.records[artifact.ID] = artifact
	receipt := domain.CreateReceipt{Acknowledged: true, InsertedID: artifact.ID, StoredAt: time.Now().UTC(), Mode: s.mode}
	if s.mode.Durable() {
		receipt.FileID = "file-" + artifact.ID
	}
	return receipt, nil
}

func (s *fakeService) PatchRecipient(_ context.Context, recordingID, _ string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches++
	if s.patchErr != nil {
		return time.Time{}, s.patchErr
	}
	if s.onPatch != nil {
		s.onPatch()
	}
	return s.deliveredAt, nil
}

func (s *fakeService) Fetch(_ context.Context, _ string) (domain.AudioDownload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch, s.fetchErr
}

func (s *fakeService) List(context.Context) (domain.RemoteListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RemoteListing{Count: len(s.records), Mode: s.mode}, nil
}

func (s *fakeService) counts() (creates int, patches int, records int, maxActive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.patches, len(s.records), s.maxActive
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []stateEvent
	errs   []errEvent
}

type stateEvent struct {
	state  domain.RecorderState
	reason domain.RecorderStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) RecorderStateChanged(state domain.RecorderState, reason domain.RecorderStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) ArtifactChanged(domain.RecordingArtifact) {}

func (f *fakeEventSink) BackendError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errs...)
}
