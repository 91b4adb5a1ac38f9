package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"cockpit/internal/domain"
)

// DefaultChunkSize splits stored audio into 256 KiB rows.
const DefaultChunkSize = 256 * 1024

type recordingRow struct {
	ID            string     `gorm:"column:id;primaryKey;type:varchar(64)"`
	AppointmentID string     `gorm:"column:appointment_id;type:varchar(64);index"`
	CustomerID    string     `gorm:"column:customer_id;type:varchar(64);index"`
	RecordedAt    time.Time  `gorm:"column:recorded_at"`
	FileName      string     `gorm:"column:file_name"`
	Size          int64      `gorm:"column:size"`
	State         string     `gorm:"column:state;type:varchar(16)"`
	ContentType   string     `gorm:"column:content_type"`
	FileID        string     `gorm:"column:file_id;type:varchar(64)"`
	StoredAt      time.Time  `gorm:"column:stored_at;index"`
	DeliveredAt   *time.Time `gorm:"column:delivered_at"`
}

func (recordingRow) TableName() string { return "recordings" }

type chunkRow struct {
	FileID string `gorm:"column:file_id;primaryKey;type:varchar(64)"`
	Seq    int    `gorm:"column:seq;primaryKey"`
	Data   []byte `gorm:"column:data"`
}

func (chunkRow) TableName() string { return "recording_chunks" }

// Postgres keeps recording metadata in one table and audio split across
// fixed-size chunk rows keyed by a per-upload file id.
type Postgres struct {
	db        *gorm.DB
	chunkSize int
	now       func() time.Time
}

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string, chunkSize int) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&recordingRow{}, &chunkRow{}); err != nil {
		return nil, fmt.Errorf("migrate recordings schema: %w", err)
	}
	return NewPostgres(db, chunkSize), nil
}

func NewPostgres(db *gorm.DB, chunkSize int) *Postgres {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Postgres{db: db, chunkSize: chunkSize, now: time.Now}
}

func (p *Postgres) Mode() domain.StorageMode { return domain.StorageModePostgres }

func (p *Postgres) Upsert(ctx context.Context, upload Upload) (domain.CreateReceipt, error) {
	rec := upload.Recording
	rec.StoredAt = p.now().UTC()
	rec.FileID = ""
	if len(upload.Audio) > 0 {
		rec.FileID = uuid.NewString()
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing recordingRow
		res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", rec.ID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if rec.DeliveredAt == nil {
				rec.DeliveredAt = existing.DeliveredAt
			}
			if existing.FileID != "" {
				if err := tx.Where("file_id = ?", existing.FileID).Delete(&chunkRow{}).Error; err != nil {
					return err
				}
			}
		}

		if chunks := splitChunks(rec.FileID, upload.Audio, p.chunkSize); len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 16).Error; err != nil {
				return err
			}
		}

		row := toRow(rec, upload.ContentType)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return domain.CreateReceipt{}, fmt.Errorf("failed to upsert recording %s: %w", rec.ID, err)
	}
	return receiptFor(rec, p.Mode()), nil
}

func (p *Postgres) Deliver(ctx context.Context, recordingID, customerID string, at time.Time) (domain.StoredRecording, error) {
	at = at.UTC()
	result := p.db.WithContext(ctx).Model(&recordingRow{}).
		Where("id = ?", recordingID).
		Updates(map[string]interface{}{
			"customer_id":  customerID,
			"delivered_at": at,
		})
	if result.Error != nil {
		return domain.StoredRecording{}, fmt.Errorf("failed to deliver recording %s: %w", recordingID, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.StoredRecording{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	return p.Get(ctx, recordingID)
}

func (p *Postgres) Get(ctx context.Context, recordingID string) (domain.StoredRecording, error) {
	row, err := p.row(ctx, recordingID)
	if err != nil {
		return domain.StoredRecording{}, err
	}
	return row.toRecording(), nil
}

func (p *Postgres) Audio(ctx context.Context, recordingID string) (Audio, error) {
	row, err := p.row(ctx, recordingID)
	if err != nil {
		return Audio{}, err
	}
	if row.FileID == "" {
		return Audio{}, fmt.Errorf("%w: %s", domain.ErrNotReady, recordingID)
	}

	var chunks []chunkRow
	if err := p.db.WithContext(ctx).Where("file_id = ?", row.FileID).Order("seq asc").Find(&chunks).Error; err != nil {
		return Audio{}, fmt.Errorf("failed to read audio for %s: %w", recordingID, err)
	}
	if len(chunks) == 0 {
		return Audio{}, fmt.Errorf("%w: %s", domain.ErrNotReady, recordingID)
	}
	data := make([]byte, 0, row.Size)
	for _, chunk := range chunks {
		data = append(data, chunk.Data...)
	}
	return Audio{Data: data, ContentType: row.ContentType, FileName: row.FileName, RecordedAt: row.RecordedAt}, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]domain.StoredRecording, error) {
	var rows []recordingRow
	if err := p.db.WithContext(ctx).Order("stored_at desc").Limit(normalizeLimit(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	out := make([]domain.StoredRecording, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecording())
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) row(ctx context.Context, recordingID string) (recordingRow, error) {
	var row recordingRow
	res := p.db.WithContext(ctx).Where("id = ?", recordingID).Limit(1).Find(&row)
	if res.Error != nil {
		return recordingRow{}, fmt.Errorf("failed to read recording %s: %w", recordingID, res.Error)
	}
	if res.RowsAffected == 0 {
		return recordingRow{}, fmt.Errorf("%w: %s", domain.ErrNotFound, recordingID)
	}
	return row, nil
}

func splitChunks(fileID string, data []byte, size int) []chunkRow {
	if fileID == "" || len(data) == 0 {
		return nil
	}
	chunks := make([]chunkRow, 0, (len(data)+size-1)/size)
	for seq, start := 0, 0; start < len(data); seq, start = seq+1, start+size {
		end := min(start+size, len(data))
		chunks = append(chunks, chunkRow{FileID: fileID, Seq: seq, Data: data[start:end]})
	}
	return chunks
}

func toRow(rec domain.StoredRecording, contentType string) recordingRow {
	return recordingRow{
		ID:            rec.ID,
		AppointmentID: rec.AppointmentID,
		CustomerID:    rec.CustomerID,
		RecordedAt:    rec.CreatedAt,
		FileName:      rec.FileName,
		Size:          rec.Size,
		State:         string(rec.State),
		ContentType:   contentType,
		FileID:        rec.FileID,
		StoredAt:      rec.StoredAt,
		DeliveredAt:   rec.DeliveredAt,
	}
}

func (r recordingRow) toRecording() domain.StoredRecording {
	return domain.StoredRecording{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		CustomerID:    r.CustomerID,
		CreatedAt:     r.RecordedAt,
		FileName:      r.FileName,
		Size:          r.Size,
		State:         domain.SyncState(r.State),
		StoredAt:      r.StoredAt,
		FileID:        r.FileID,
		DeliveredAt:   r.DeliveredAt,
	}
}

