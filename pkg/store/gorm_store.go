package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"harmonicai/pkg/domain"
)

const migrateLockID int64 = 84518451

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&EbookModel{}, &ChapterModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chapter_models c
				WHERE NOT EXISTS (SELECT 1 FROM ebook_models e WHERE e.id = c.ebook_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chapter_models'
					AND constraint_name = 'chapter_models_ebook_id_fkey'
				) THEN
					ALTER TABLE chapter_models
					ADD CONSTRAINT chapter_models_ebook_id_fkey
					FOREIGN KEY (ebook_id) REFERENCES ebook_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure chapter foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateEbook inserts a new ebook record.
func (s *GormStore) CreateEbook(e domain.Ebook) error {
	model := ebookToModel(e)
	return s.db.Create(&model).Error
}

// SetEbookStatus updates ebook status and diagnostic message.
func (s *GormStore) SetEbookStatus(id string, status domain.EbookStatus, statusMessage string) error {
	return s.db.Model(&EbookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         string(status),
			"status_message": statusMessage,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// SetEbookProcessed marks ingestion done and stores the text preview.
func (s *GormStore) SetEbookProcessed(id string, textPreview string) error {
	return s.db.Model(&EbookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         string(domain.EbookProcessed),
			"status_message": "",
			"text_preview":   textPreview,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// GetEbook retrieves an ebook.
func (s *GormStore) GetEbook(id string) (domain.Ebook, bool, error) {
	var model EbookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Ebook{}, false, nil
		}
		return domain.Ebook{}, false, err
	}
	return ebookFromModel(model), true, nil
}

// ListEbooksByOwner returns ebooks filtered by owner, oldest first.
func (s *GormStore) ListEbooksByOwner(ownerID string) ([]domain.Ebook, error) {
	var models []EbookModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Ebook, 0, len(models))
	for _, m := range models {
		res = append(res, ebookFromModel(m))
	}
	return res, nil
}

// DeleteEbook removes the ebook row; chapters go via FK cascade.
func (s *GormStore) DeleteEbook(id string) error {
	return s.db.Delete(&EbookModel{}, "id = ?", id).Error
}

// InsertChapters bulk-inserts chapter rows.
func (s *GormStore) InsertChapters(chapters []domain.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	models := make([]ChapterModel, 0, len(chapters))
	for _, ch := range chapters {
		models = append(models, chapterToModel(ch))
	}
	return s.db.CreateInBatches(&models, 200).Error
}

// GetChapter retrieves a chapter.
func (s *GormStore) GetChapter(id string) (domain.Chapter, bool, error) {
	var model ChapterModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Chapter{}, false, nil
		}
		return domain.Chapter{}, false, err
	}
	return chapterFromModel(model), true, nil
}

// ListChaptersByEbook returns chapters in reading order.
func (s *GormStore) ListChaptersByEbook(ebookID string) ([]domain.Chapter, error) {
	var models []ChapterModel
	if err := s.db.Where("ebook_id = ?", ebookID).
		Order("chapter_number ASC").
		Order("part_number ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	chapters := make([]domain.Chapter, 0, len(models))
	for _, m := range models {
		chapters = append(chapters, chapterFromModel(m))
	}
	return chapters, nil
}

// ClaimChapters transitions every claimable chapter of the ebook to
// processing_tts in one conditional UPDATE and returns the claimed rows.
// The single statement is what prevents two concurrent batch invocations
// from both selecting the same pending chapter.
func (s *GormStore) ClaimChapters(ebookID string) ([]domain.Chapter, error) {
	var models []ChapterModel
	err := s.db.Model(&models).
		Clauses(clause.Returning{}).
		Where("ebook_id = ? AND status IN ?", ebookID,
			[]string{string(domain.ChapterPending), string(domain.ChapterErrorTTS)}).
		Updates(map[string]any{
			"status":     string(domain.ChapterProcessingTTS),
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	chapters := make([]domain.Chapter, 0, len(models))
	for _, m := range models {
		chapters = append(chapters, chapterFromModel(m))
	}
	return chapters, nil
}

// ClaimChapter claims a single chapter; ok is false when its status was
// neither pending nor error_tts.
func (s *GormStore) ClaimChapter(id string) (domain.Chapter, bool, error) {
	res := s.db.Model(&ChapterModel{}).
		Where("id = ? AND status IN ?", id,
			[]string{string(domain.ChapterPending), string(domain.ChapterErrorTTS)}).
		Updates(map[string]any{
			"status":     string(domain.ChapterProcessingTTS),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Chapter{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Chapter{}, false, nil
	}
	chapter, found, err := s.GetChapter(id)
	if err != nil {
		return domain.Chapter{}, false, err
	}
	return chapter, found, nil
}

// SetChapterAudio marks a chapter complete with its audio location.
func (s *GormStore) SetChapterAudio(id string, audioURL string, seconds float64, meta map[string]string) error {
	rawMeta, _ := json.Marshal(meta)
	return s.db.Model(&ChapterModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(domain.ChapterComplete),
			"audio_url":     audioURL,
			"audio_seconds": seconds,
			"audio_meta":    rawMeta,
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetChapterError marks a chapter failed with the provider's error detail.
func (s *GormStore) SetChapterError(id string, errMsg string) error {
	return s.db.Model(&ChapterModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(domain.ChapterErrorTTS),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func ebookToModel(e domain.Ebook) EbookModel {
	return EbookModel{
		ID:               e.ID,
		OwnerID:          e.OwnerID,
		Title:            e.Title,
		Author:           e.Author,
		OriginalFileName: e.OriginalFileName,
		OriginalFileType: e.OriginalFileType,
		TextPreview:      e.TextPreview,
		Status:           string(e.Status),
		StatusMessage:    e.StatusMessage,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func ebookFromModel(m EbookModel) domain.Ebook {
	return domain.Ebook{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		Title:            m.Title,
		Author:           m.Author,
		OriginalFileName: m.OriginalFileName,
		OriginalFileType: m.OriginalFileType,
		TextPreview:      m.TextPreview,
		Status:           domain.EbookStatus(m.Status),
		StatusMessage:    m.StatusMessage,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func chapterToModel(ch domain.Chapter) ChapterModel {
	meta, _ := json.Marshal(ch.AudioMeta)
	return ChapterModel{
		ID:            ch.ID,
		EbookID:       ch.EbookID,
		ChapterNumber: ch.ChapterNumber,
		PartNumber:    ch.PartNumber,
		Title:         ch.Title,
		TextContent:   ch.TextContent,
		AudioURL:      ch.AudioURL,
		AudioSeconds:  ch.AudioSeconds,
		AudioMeta:     meta,
		Status:        string(ch.Status),
		ErrorMessage:  ch.ErrorMessage,
		CreatedAt:     ch.CreatedAt,
		UpdatedAt:     ch.UpdatedAt,
	}
}

func chapterFromModel(m ChapterModel) domain.Chapter {
	var meta map[string]string
	if len(m.AudioMeta) > 0 {
		_ = json.Unmarshal(m.AudioMeta, &meta)
	}
	return domain.Chapter{
		ID:            m.ID,
		EbookID:       m.EbookID,
		ChapterNumber: m.ChapterNumber,
		PartNumber:    m.PartNumber,
		Title:         m.Title,
		TextContent:   m.TextContent,
		AudioURL:      m.AudioURL,
		AudioSeconds:  m.AudioSeconds,
		AudioMeta:     meta,
		Status:        domain.ChapterStatus(m.Status),
		ErrorMessage:  m.ErrorMessage,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
