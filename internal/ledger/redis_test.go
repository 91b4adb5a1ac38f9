package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cockpit/internal/domain"
)

func TestRedisGetUnknownID(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	mock.ExpectGet("recording:rec-missing").RedisNil()

	_, err := r.Get(context.Background(), "rec-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAudioNotReady(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	doc, err := json.Marshal(redisRecord{StoredRecording: domain.StoredRecording{ID: "rec-1"}})
	require.NoError(t, err)
	mock.ExpectGet("recording:rec-1").SetVal(string(doc))
	mock.ExpectGet("recording:rec-1:audio").RedisNil()

	_, err = r.Audio(context.Background(), "rec-1")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecentReadsIndexNewestFirst(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)

	first, _ := json.Marshal(redisRecord{StoredRecording: domain.StoredRecording{ID: "rec-2", CustomerID: "cust-1"}})
	second, _ := json.Marshal(redisRecord{StoredRecording: domain.StoredRecording{ID: "rec-1", CustomerID: "cust-2"}})
	mock.ExpectZRevRange(storedIndexKey, 0, int64(DefaultRecentLimit-1)).SetVal([]string{"rec-2", "rec-1", "rec-gone"})
	mock.ExpectMGet("recording:rec-2", "recording:rec-1", "recording:rec-gone").
		SetVal([]interface{}{string(first), string(second), nil})

	recent, err := r.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "rec-2", recent[0].ID)
	assert.Equal(t, "rec-1", recent[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRecentEmptyIndex(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	mock.ExpectZRevRange(storedIndexKey, 0, int64(DefaultRecentLimit-1)).SetVal([]string{})

	recent, err := r.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRedisDeliverUnknownID(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	mock.ExpectWatch("recording:rec-missing")
	mock.ExpectGet("recording:rec-missing").RedisNil()

	_, err := r.Deliver(context.Background(), "rec-missing", "cust-1", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisDeliverRewritesRecord(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	at := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	prev, err := json.Marshal(redisRecord{StoredRecording: domain.StoredRecording{ID: "rec-1", CustomerID: "cust-1"}})
	require.NoError(t, err)

	var written redisRecord
	mock.ExpectWatch("recording:rec-1")
	mock.ExpectGet("recording:rec-1").SetVal(string(prev))
	mock.ExpectTxPipeline()
	mock.CustomMatch(captureDoc(&written)).ExpectSet("recording:rec-1", "", 0).SetVal("OK")
	mock.ExpectTxPipelineExec()

	rec, err := r.Deliver(context.Background(), "rec-1", "cust-2", at)
	require.NoError(t, err)
	assert.Equal(t, "cust-2", rec.CustomerID)
	require.NotNil(t, written.DeliveredAt)
	assert.True(t, written.DeliveredAt.Equal(at))
	assert.Equal(t, "cust-2", written.CustomerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisUpsertReplacesAndKeepsDeliveredAt(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	storedAt := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return storedAt }
	deliveredAt := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	prev, err := json.Marshal(redisRecord{StoredRecording: domain.StoredRecording{
		ID:          "rec-1",
		CustomerID:  "cust-1",
		FileID:      "file-old",
		DeliveredAt: &deliveredAt,
	}})
	require.NoError(t, err)

	audio := []byte("RIFFnew")
	var written redisRecord
	mock.ExpectWatch("recording:rec-1")
	mock.ExpectGet("recording:rec-1").SetVal(string(prev))
	mock.ExpectTxPipeline()
	mock.CustomMatch(captureDoc(&written)).ExpectSet("recording:rec-1", "", 0).SetVal("OK")
	mock.ExpectSet("recording:rec-1:audio", audio, 0).SetVal("OK")
	mock.ExpectZAdd(storedIndexKey, redis.Z{Score: float64(storedAt.UnixMilli()), Member: "rec-1"}).SetVal(1)
	mock.ExpectTxPipelineExec()

	receipt, err := r.Upsert(context.Background(), Upload{
		Recording: domain.StoredRecording{
			ID:         "rec-1",
			CustomerID: "cust-1",
			FileName:   "a.wav",
			State:      domain.SyncStateSynced,
		},
		Audio:       audio,
		ContentType: domain.ContentTypeWAV,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StorageModeRedis, receipt.Mode)
	assert.NotEmpty(t, receipt.FileID)
	assert.NotEqual(t, "file-old", receipt.FileID)

	assert.Equal(t, receipt.FileID, written.FileID)
	assert.Equal(t, domain.ContentTypeWAV, written.ContentType)
	require.NotNil(t, written.DeliveredAt)
	assert.True(t, written.DeliveredAt.Equal(deliveredAt))
	assert.True(t, written.StoredAt.Equal(storedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisUpsertWithoutAudioDropsOldAudio(t *testing.T) {
	t.Parallel()

	client, mock := redismock.NewClientMock()
	r := NewRedis(client)
	storedAt := time.Date(2026, 2, 3, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return storedAt }

	var written redisRecord
	mock.ExpectWatch("recording:rec-2")
	mock.ExpectGet("recording:rec-2").RedisNil()
	mock.ExpectTxPipeline()
	mock.CustomMatch(captureDoc(&written)).ExpectSet("recording:rec-2", "", 0).SetVal("OK")
	mock.ExpectDel("recording:rec-2:audio").SetVal(0)
	mock.ExpectZAdd(storedIndexKey, redis.Z{Score: float64(storedAt.UnixMilli()), Member: "rec-2"}).SetVal(1)
	mock.ExpectTxPipelineExec()

	receipt, err := r.Upsert(context.Background(), Upload{Recording: domain.StoredRecording{ID: "rec-2"}})
	require.NoError(t, err)
	assert.Empty(t, receipt.FileID)
	assert.Equal(t, "rec-2", written.ID)
	assert.Nil(t, written.DeliveredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// captureDoc matches a SET of a recording document and decodes its value.
func captureDoc(out *redisRecord) redismock.CustomMatch {
	return func(expected, actual []interface{}) error {
		if len(actual) != 3 || actual[1] != expected[1] {
			return errors.New("unexpected set arguments")
		}
		raw, ok := actual[2].([]byte)
		if !ok {
			return errors.New("document is not raw json")
		}
		return json.Unmarshal(raw, out)
	}
}
