package store

import (
	"harmonicai/pkg/domain"
)

// Store defines persistence operations for ebooks and chapters.
type Store interface {
	// ebooks
	CreateEbook(domain.Ebook) error
	SetEbookStatus(id string, status domain.EbookStatus, statusMessage string) error
	// SetEbookProcessed marks ingestion done and records the extracted text
	// preview shown in listings.
	SetEbookProcessed(id string, textPreview string) error
	GetEbook(id string) (domain.Ebook, bool, error)
	ListEbooksByOwner(ownerID string) ([]domain.Ebook, error)
	DeleteEbook(id string) error

	// chapters
	InsertChapters(chapters []domain.Chapter) error
	GetChapter(id string) (domain.Chapter, bool, error)
	ListChaptersByEbook(ebookID string) ([]domain.Chapter, error)

	// ClaimChapters atomically transitions every chapter of the ebook whose
	// status is pending or error_tts to processing_tts and returns the
	// claimed rows. A chapter already claimed by a concurrent invocation is
	// not returned twice.
	ClaimChapters(ebookID string) ([]domain.Chapter, error)
	// ClaimChapter does the same for a single chapter; ok is false when the
	// chapter was not in a claimable status.
	ClaimChapter(id string) (domain.Chapter, bool, error)

	SetChapterAudio(id string, audioURL string, seconds float64, meta map[string]string) error
	SetChapterError(id string, errMsg string) error
}
