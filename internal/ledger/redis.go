package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cockpit/internal/domain"
)

const (
	storedIndexKey   = "recordings:stored"
	maxWatchAttempts = 3
)

type redisRecord struct {
	domain.StoredRecording
	ContentType string `json:"contentType,omitempty"`
}

// Redis keeps each recording as a JSON document plus a separate audio key,
// indexed newest-first by a sorted set scored on storage time.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// OpenRedis connects using a redis:// URL.
func OpenRedis(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedis(client), nil
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func recordKey(id string) string { return "recording:" + id }
func audioKey(id string) string  { return "recording:" + id + ":audio" }

func (r *Redis) Mode() domain.StorageMode { return domain.StorageModeRedis }

func (r *Redis) Upsert(ctx context.Context, upload Upload) (domain.CreateReceipt, error) {
	rec := upload.Recording
	rec.StoredAt = r.now().UTC()
	rec.FileID = ""
	if len(upload.Audio) > 0 {
		rec.FileID = uuid.NewString()
	}

	key := recordKey(rec.ID)
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		rec.DeliveredAt = upload.Recording.DeliveredAt
		prev, err := readRecord(ctx, tx, rec.ID)
		switch {
		case err == nil:
			if rec.DeliveredAt == nil {
				rec.DeliveredAt = prev.DeliveredAt
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		doc, err := json.Marshal(redisRecord{StoredRecording: rec, ContentType: upload.ContentType})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			if len(upload.Audio) > 0 {
				pipe.Set(ctx, audioKey(rec.ID), upload.Audio, 0)
			} else {
				pipe.Del(ctx, audioKey(rec.ID))
			}
			pipe.ZAdd(ctx, storedIndexKey, redis.Z{Score: float64(rec.StoredAt.UnixMilli()), Member: rec.ID})
			return nil
		})
		return err
	})
	if err != nil {
		return domain.CreateReceipt{}, fmt.Errorf("failed to upsert recording %s: %w", rec.ID, err)
	}
	return receiptFor(rec, r.Mode()), nil
}

// Deliver rewrites the record under WATCH so a concurrent upsert is not lost.
func (r *Redis) Deliver(ctx context.Context, recordingID, customerID string, at time.Time) (domain.StoredRecording, error) {
	key := recordKey(recordingID)
	var out domain.StoredRecording

	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		rec, err := readRecord(ctx, tx, recordingID)
		if err != nil {
			return err
		}
		deliveredAt := at.UTC()
		rec.CustomerID = customerID
		rec.DeliveredAt = &deliveredAt

		doc, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		out = rec.StoredRecording
		return err
	})
	if err != nil {
		return domain.StoredRecording{}, err
	}
	return out, nil
}

// watch runs fn under WATCH on key, retrying when another client changed
// the key before EXEC.
func (r *Redis) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err = r.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *Redis) Get(ctx context.Context, recordingID string) (domain.StoredRecording, error) {
	rec, err := readRecord(ctx, r.client, recordingID)
	if err != nil {
		return domain.StoredRecording{}, err
	}
	return rec.StoredRecording, nil
}

func (r *Redis) Audio(ctx context.Context, recordingID string) (Audio, error) {
	rec, err := readRecord(ctx, r.client, recordingID)
	if err != nil {
		return Audio{}, err
	}
	data, err := r.client.Get(ctx, audioKey(recordingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Audio{}, fmt.Errorf("%w: %s", domain.ErrNotReady, recordingID)
	}
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read audio for %s: %w", recordingID, err)
	}
	return Audio{Data: data, ContentType: rec.ContentType, FileName: rec.FileName, RecordedAt: rec.CreatedAt}, nil
}

func (r *Redis) Recent(ctx context.Context, limit int) ([]domain.StoredRecording, error) {
	ids, err := r.client.ZRevRange(ctx, storedIndexKey, 0, int64(normalizeLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	if len(ids) == 0 {
		return []domain.StoredRecording{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load recordings: %w", err)
	}

	out := make([]domain.StoredRecording, 0, len(docs))
	for _, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			continue
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec.StoredRecording)
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type recordGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, client recordGetter, recordingID string) (redisRecord, error) {
	raw, err := client.Get(ctx, recordKey(recordingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return redisRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	if err != nil {
		return redisRecord{}, fmt.Errorf("failed to read recording %s: %w", recordingID, err)
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return redisRecord{}, fmt.Errorf("failed to decode recording %s: %w", recordingID, err)
	}
	return rec, nil
}
