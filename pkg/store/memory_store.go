package store

import (
	"sort"
	"sync"
	"time"

	"harmonicai/pkg/domain"
)

// MemoryStore keeps ebooks and chapters in-process. It backs tests and local
// development without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	ebooks   map[string]domain.Ebook
	chapters map[string]domain.Chapter
	order    []string // ebook insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ebooks:   make(map[string]domain.Ebook),
		chapters: make(map[string]domain.Chapter),
	}
}

// CreateEbook stores a new ebook record and tracks insertion order.
func (m *MemoryStore) CreateEbook(e domain.Ebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.ebooks[e.ID]; !exists {
		m.order = append(m.order, e.ID)
	}
	m.ebooks[e.ID] = e
	return nil
}

// SetEbookStatus updates status and diagnostic message.
func (m *MemoryStore) SetEbookStatus(id string, status domain.EbookStatus, statusMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ebook, ok := m.ebooks[id]
	if !ok {
		return nil
	}
	ebook.Status = status
	ebook.StatusMessage = statusMessage
	ebook.UpdatedAt = time.Now().UTC()
	m.ebooks[id] = ebook
	return nil
}

// SetEbookProcessed marks ingestion done and stores the text preview.
func (m *MemoryStore) SetEbookProcessed(id string, textPreview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ebook, ok := m.ebooks[id]
	if !ok {
		return nil
	}
	ebook.Status = domain.EbookProcessed
	ebook.StatusMessage = ""
	ebook.TextPreview = textPreview
	ebook.UpdatedAt = time.Now().UTC()
	m.ebooks[id] = ebook
	return nil
}

// GetEbook retrieves an ebook by ID.
func (m *MemoryStore) GetEbook(id string) (domain.Ebook, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.ebooks[id]
	return e, ok, nil
}

// ListEbooksByOwner returns ebooks filtered by owner in insertion order.
func (m *MemoryStore) ListEbooksByOwner(ownerID string) ([]domain.Ebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Ebook, 0, len(m.order))
	for _, id := range m.order {
		if e, ok := m.ebooks[id]; ok && e.OwnerID == ownerID {
			res = append(res, e)
		}
	}
	return res, nil
}

// DeleteEbook removes an ebook and its chapters (cascade).
func (m *MemoryStore) DeleteEbook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ebooks, id)
	for chID, ch := range m.chapters {
		if ch.EbookID == id {
			delete(m.chapters, chID)
		}
	}
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// InsertChapters stores chapter rows.
func (m *MemoryStore) InsertChapters(chapters []domain.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chapters {
		m.chapters[ch.ID] = ch
	}
	return nil
}

// GetChapter retrieves a chapter by ID.
func (m *MemoryStore) GetChapter(id string) (domain.Chapter, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chapters[id]
	return ch, ok, nil
}

// ListChaptersByEbook returns chapters in reading order.
func (m *MemoryStore) ListChaptersByEbook(ebookID string) ([]domain.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chaptersOfLocked(ebookID), nil
}

func (m *MemoryStore) chaptersOfLocked(ebookID string) []domain.Chapter {
	res := make([]domain.Chapter, 0)
	for _, ch := range m.chapters {
		if ch.EbookID == ebookID {
			res = append(res, ch)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].ChapterNumber != res[j].ChapterNumber {
			return res[i].ChapterNumber < res[j].ChapterNumber
		}
		return res[i].PartNumber < res[j].PartNumber
	})
	return res
}

// ClaimChapters transitions claimable chapters to processing_tts under the
// store lock, mirroring the conditional UPDATE of the Postgres store.
func (m *MemoryStore) ClaimChapters(ebookID string) ([]domain.Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := make([]domain.Chapter, 0)
	for _, ch := range m.chaptersOfLocked(ebookID) {
		if ch.Status != domain.ChapterPending && ch.Status != domain.ChapterErrorTTS {
			continue
		}
		ch.Status = domain.ChapterProcessingTTS
		ch.UpdatedAt = time.Now().UTC()
		m.chapters[ch.ID] = ch
		claimed = append(claimed, ch)
	}
	return claimed, nil
}

// ClaimChapter claims one chapter when its status allows it.
func (m *MemoryStore) ClaimChapter(id string) (domain.Chapter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chapters[id]
	if !ok {
		return domain.Chapter{}, false, nil
	}
	if ch.Status != domain.ChapterPending && ch.Status != domain.ChapterErrorTTS {
		return domain.Chapter{}, false, nil
	}
	ch.Status = domain.ChapterProcessingTTS
	ch.UpdatedAt = time.Now().UTC()
	m.chapters[id] = ch
	return ch, true, nil
}

// SetChapterAudio marks a chapter complete with its audio location.
func (m *MemoryStore) SetChapterAudio(id string, audioURL string, seconds float64, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chapters[id]
	if !ok {
		return nil
	}
	ch.Status = domain.ChapterComplete
	ch.AudioURL = audioURL
	ch.AudioSeconds = seconds
	ch.AudioMeta = meta
	ch.ErrorMessage = ""
	ch.UpdatedAt = time.Now().UTC()
	m.chapters[id] = ch
	return nil
}

// SetChapterError marks a chapter failed with the error detail.
func (m *MemoryStore) SetChapterError(id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chapters[id]
	if !ok {
		return nil
	}
	ch.Status = domain.ChapterErrorTTS
	ch.ErrorMessage = errMsg
	ch.UpdatedAt = time.Now().UTC()
	m.chapters[id] = ch
	return nil
}
