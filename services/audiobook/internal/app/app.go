package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"harmonicai/internal/util"
	"harmonicai/pkg/domain"
	"harmonicai/pkg/notify"
	"harmonicai/pkg/storage"
	"harmonicai/pkg/store"
	"harmonicai/pkg/tts"
)

const textPreviewLength = 1000

// Ingestion failure modes mapped to client errors by the HTTP layer.
var (
	ErrEmptyContent    = errors.New("no readable text content found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEbookNotFound   = errors.New("ebook not found")
	ErrChapterNotFound = errors.New("chapter not found")
)

// Config holds runtime configuration for the core application. Store,
// Objects, Synth and Notifier can be injected for tests; when nil they are
// constructed from the remaining fields.
type Config struct {
	DatabaseURL string
	Store       store.Store

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Objects        storage.ObjectStore

	TTSAPIKey  string
	TTSBaseURL string
	TTSModelID string
	Synth      tts.Synthesizer

	Notifier notify.Notifier

	DefaultVoiceID      string
	SynthesisCharLimit  int
	GenerateConcurrency int
}

// App wires together persistence, object storage, speech synthesis and
// change notification behind the ebook operations.
type App struct {
	store        store.Store
	objects      storage.ObjectStore
	synth        tts.Synthesizer
	notifier     notify.Notifier
	defaultVoice string
	charLimit    int
	concurrency  int
}

// New constructs the application. Absent injected implementations it opens
// Postgres, MinIO and the synthesis provider from config.
func New(cfg Config) (*App, error) {
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	synth := cfg.Synth
	if synth == nil {
		var err error
		synth, err = tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:  cfg.TTSAPIKey,
			BaseURL: cfg.TTSBaseURL,
			ModelID: cfg.TTSModelID,
		})
		if err != nil {
			return nil, fmt.Errorf("init synthesizer: %w", err)
		}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewMemoryNotifier()
	}
	if cfg.DefaultVoiceID == "" {
		return nil, fmt.Errorf("default voice ID required")
	}
	charLimit := cfg.SynthesisCharLimit
	if charLimit <= 0 {
		charLimit = 9000
	}
	concurrency := cfg.GenerateConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &App{
		store:        dataStore,
		objects:      objects,
		synth:        synth,
		notifier:     notifier,
		defaultVoice: cfg.DefaultVoiceID,
		charLimit:    charLimit,
		concurrency:  concurrency,
	}, nil
}

// IngestInput is one ebook submission: either pasted text or an uploaded
// file with its original name.
type IngestInput struct {
	Title     string
	Author    string
	InputText string
	FileName  string
	FileData  []byte
}

// Details is the full client view of one ebook.
type Details struct {
	Ebook    domain.Ebook     `json:"ebook"`
	Chapters []domain.Chapter `json:"chapters"`
	Progress domain.Progress  `json:"progress"`
}

// Ingest creates the ebook record, extracts and segments its text into
// chapter rows, and stores the original file. The record is created before
// processing so any failure is visible as a failed ebook rather than a
// vanished upload.
func (a *App) Ingest(ctx context.Context, ownerID string, in IngestInput) (Details, error) {
	fileName := strings.TrimSpace(in.FileName)
	fileData := in.FileData
	if fileName == "" {
		if strings.TrimSpace(in.InputText) == "" {
			return Details{}, fmt.Errorf("%w: no file or input text", ErrEmptyContent)
		}
		fileName = fmt.Sprintf("pasted-text-%d.txt", time.Now().Unix())
		fileData = []byte(in.InputText)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".epub", ".pdf", ".txt":
	default:
		return Details{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = titleFromName(fileName)
	}
	now := time.Now().UTC()
	ebook := domain.Ebook{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Title:            title,
		Author:           strings.TrimSpace(in.Author),
		OriginalFileName: filepath.Base(fileName),
		OriginalFileType: strings.TrimPrefix(ext, "."),
		Status:           domain.EbookProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.CreateEbook(ebook); err != nil {
		return Details{}, fmt.Errorf("create ebook: %w", err)
	}

	chapters, preview, err := a.process(ctx, ebook.ID, ext, fileData)
	if err != nil {
		if markErr := a.store.SetEbookStatus(ebook.ID, domain.EbookFailed, err.Error()); markErr != nil {
			util.LoggerFromContext(ctx).Error("mark ebook failed", "ebook_id", ebook.ID, "error", markErr)
		}
		return Details{}, err
	}
	if err := a.store.InsertChapters(chapters); err != nil {
		_ = a.store.SetEbookStatus(ebook.ID, domain.EbookFailed, "failed to save chapters")
		return Details{}, fmt.Errorf("insert chapters: %w", err)
	}
	if err := a.store.SetEbookProcessed(ebook.ID, preview); err != nil {
		return Details{}, fmt.Errorf("mark ebook processed: %w", err)
	}

	a.storeOriginal(ctx, ebook.ID, fileName, fileData)

	ebook.Status = domain.EbookProcessed
	ebook.TextPreview = preview
	return Details{
		Ebook:    ebook,
		Chapters: chapters,
		Progress: domain.ComputeProgress(chapters),
	}, nil
}

// process extracts text by file type and segments it into chapter rows.
func (a *App) process(ctx context.Context, ebookID, ext string, data []byte) ([]domain.Chapter, string, error) {
	var drafts []chapterDraft
	switch ext {
	case ".epub":
		docs, err := readArchive(ctx, data)
		if err != nil {
			return nil, "", err
		}
		for _, doc := range docs {
			text, err := markupToText(bytes.NewReader(doc.Data))
			if err != nil {
				util.LoggerFromContext(ctx).Warn("content document unparseable, skipping", "name", doc.Name)
				continue
			}
			drafts = append(drafts, chapterDraft{Title: titleHint(text), Text: text})
		}
	case ".pdf":
		text, err := extractPDFText(data)
		if err != nil {
			return nil, "", err
		}
		drafts = splitHeadings(text)
	default:
		drafts = splitHeadings(string(data))
	}

	chapters := buildChapters(ebookID, drafts, a.charLimit)
	if len(chapters) == 0 {
		return nil, "", ErrEmptyContent
	}
	return chapters, previewOf(chapters), nil
}

// storeOriginal keeps the uploaded bytes for later re-processing. Failure is
// logged, never fatal: the extracted text already lives in chapter rows.
func (a *App) storeOriginal(ctx context.Context, ebookID, fileName string, data []byte) {
	key := path.Join("ebooks", ebookID, "source", sanitizeFilename(filepath.Base(fileName)))
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		util.LoggerFromContext(ctx).Warn("store original file", "ebook_id", ebookID, "error", err)
	}
}

// GetDetails returns an ebook with its chapters in reading order.
func (a *App) GetDetails(ctx context.Context, id string) (Details, error) {
	ebook, ok, err := a.store.GetEbook(id)
	if err != nil {
		return Details{}, err
	}
	if !ok {
		return Details{}, ErrEbookNotFound
	}
	chapters, err := a.store.ListChaptersByEbook(id)
	if err != nil {
		return Details{}, err
	}
	return Details{
		Ebook:    ebook,
		Chapters: chapters,
		Progress: domain.ComputeProgress(chapters),
	}, nil
}

// GetChapter returns one chapter row.
func (a *App) GetChapter(ctx context.Context, id string) (domain.Chapter, error) {
	chapter, ok, err := a.store.GetChapter(id)
	if err != nil {
		return domain.Chapter{}, err
	}
	if !ok {
		return domain.Chapter{}, ErrChapterNotFound
	}
	return chapter, nil
}

// ListEbooks returns the caller's ebooks.
func (a *App) ListEbooks(ctx context.Context, ownerID string) ([]domain.Ebook, error) {
	return a.store.ListEbooksByOwner(ownerID)
}

// DeleteEbook removes the ebook, its chapters, and its stored objects.
// Object cleanup is best-effort once the rows are gone.
func (a *App) DeleteEbook(ctx context.Context, id string) error {
	ebook, ok, err := a.store.GetEbook(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEbookNotFound
	}
	chapters, err := a.store.ListChaptersByEbook(id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteEbook(id); err != nil {
		return err
	}
	logger := util.LoggerFromContext(ctx)
	for _, ch := range chapters {
		if key, ok := audioKeyOf(ch); ok {
			if err := a.objects.Delete(ctx, key); err != nil {
				logger.Warn("delete chapter audio", "chapter_id", ch.ID, "error", err)
			}
		}
	}
	sourceKey := path.Join("ebooks", ebook.ID, "source", sanitizeFilename(ebook.OriginalFileName))
	if err := a.objects.Delete(ctx, sourceKey); err != nil {
		logger.Warn("delete original file", "ebook_id", ebook.ID, "error", err)
	}
	return nil
}

// Subscribe exposes the notifier's per-ebook chapter change feed.
func (a *App) Subscribe(ctx context.Context, ebookID string) (<-chan notify.ChapterEvent, func(), error) {
	if _, ok, err := a.store.GetEbook(ebookID); err != nil {
		return nil, nil, err
	} else if !ok {
		return nil, nil, ErrEbookNotFound
	}
	return a.notifier.Subscribe(ctx, ebookID)
}

func audioKeyOf(ch domain.Chapter) (string, bool) {
	if ch.AudioMeta == nil {
		return "", false
	}
	key, ok := ch.AudioMeta["objectKey"]
	return key, ok && key != ""
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing the whole book
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyContent
	}
	return out, nil
}

func previewOf(chapters []domain.Chapter) string {
	var b strings.Builder
	for _, ch := range chapters {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ch.TextContent)
		if b.Len() >= textPreviewLength {
			break
		}
	}
	runes := []rune(b.String())
	if len(runes) <= textPreviewLength {
		return string(runes)
	}
	return string(runes[:textPreviewLength])
}

func titleFromName(name string) string {
	base := filepath.Base(name)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.TrimSpace(title)
	if title == "" {
		return "Untitled"
	}
	return title
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "source"
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "source"
	}
	return out
}
