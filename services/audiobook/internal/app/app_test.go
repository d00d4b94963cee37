package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"harmonicai/pkg/domain"
	"harmonicai/pkg/notify"
	"harmonicai/pkg/storage"
	"harmonicai/pkg/store"
	"harmonicai/pkg/tts"
)

// synthFunc adapts a function to the Synthesizer interface for tests.
type synthFunc func(ctx context.Context, text, voiceID string) (tts.Audio, error)

func (f synthFunc) Synthesize(ctx context.Context, text, voiceID string) (tts.Audio, error) {
	return f(ctx, text, voiceID)
}

func okSynth(_ context.Context, text, _ string) (tts.Audio, error) {
	return tts.Audio{Data: []byte("mp3:" + text[:min(8, len(text))]), ContentType: "audio/mpeg"}, nil
}

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	objects  *storage.MemoryObjectStore
	notifier *notify.MemoryNotifier
}

func newTestEnv(t *testing.T, synth synthFunc) testEnv {
	t.Helper()
	if synth == nil {
		synth = okSynth
	}
	env := testEnv{
		store:    store.NewMemoryStore(),
		objects:  storage.NewMemoryObjectStore(),
		notifier: notify.NewMemoryNotifier(),
	}
	a, err := New(Config{
		Store:               env.store,
		Objects:             env.objects,
		Synth:               synth,
		Notifier:            env.notifier,
		DefaultVoiceID:      "voice-default",
		SynthesisCharLimit:  1000,
		GenerateConcurrency: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.app = a
	return env
}

const sampleText = `Chapter 1
It was a dark and stormy night.

Chapter 2
The rain fell in torrents.`

func TestIngestInlineText(t *testing.T) {
	env := newTestEnv(t, nil)
	details, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{
		Title:     "Storm",
		InputText: sampleText,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if details.Ebook.Status != domain.EbookProcessed {
		t.Errorf("ebook status = %q, want processed", details.Ebook.Status)
	}
	if details.Ebook.Title != "Storm" {
		t.Errorf("title = %q", details.Ebook.Title)
	}
	if !strings.HasPrefix(details.Ebook.OriginalFileName, "pasted-text-") {
		t.Errorf("synthetic file name = %q", details.Ebook.OriginalFileName)
	}
	if len(details.Chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(details.Chapters))
	}
	for _, ch := range details.Chapters {
		if ch.Status != domain.ChapterPending {
			t.Errorf("chapter %d status = %q, want pending", ch.ChapterNumber, ch.Status)
		}
	}
	if details.Ebook.TextPreview == "" || len([]rune(details.Ebook.TextPreview)) > 1000 {
		t.Errorf("preview length = %d", len(details.Ebook.TextPreview))
	}

	stored, ok, err := env.store.GetEbook(details.Ebook.ID)
	if err != nil || !ok {
		t.Fatalf("stored ebook missing: %v", err)
	}
	if stored.Status != domain.EbookProcessed {
		t.Errorf("stored status = %q", stored.Status)
	}
	if env.objects.Len() == 0 {
		t.Error("original file was not stored")
	}
}

func TestIngestEPUB(t *testing.T) {
	env := newTestEnv(t, nil)
	data := buildEPUB(t, map[string]string{
		containerPath:       testContainerXML,
		"OEBPS/content.opf": testPackageOPF,
		"OEBPS/ch1.xhtml":   "<html><body><h1>Chapter 1</h1><p>First text.</p></body></html>",
		"OEBPS/ch2.xhtml":   "<html><body><h1>Chapter 2</h1><p>Second text.</p></body></html>",
	})
	details, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{
		FileName: "book.epub",
		FileData: data,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(details.Chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(details.Chapters))
	}
	// spine puts ch2 first; chapter numbering follows reading order
	if details.Chapters[0].TextContent != "Chapter 2\n\nSecond text." {
		t.Errorf("first chapter text = %q", details.Chapters[0].TextContent)
	}
	if details.Ebook.OriginalFileType != "epub" {
		t.Errorf("file type = %q", details.Ebook.OriginalFileType)
	}
}

func TestIngestEmptyArchiveMarksEbookFailed(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{
		FileName: "empty.epub",
		FileData: buildEPUB(t, nil),
	})
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("err = %v, want ErrArchiveCorrupt", err)
	}
	ebooks, err := env.store.ListEbooksByOwner("owner-1")
	if err != nil {
		t.Fatalf("list ebooks: %v", err)
	}
	if len(ebooks) != 1 {
		t.Fatalf("got %d ebooks, want the failed row", len(ebooks))
	}
	if ebooks[0].Status != domain.EbookFailed {
		t.Errorf("ebook status = %q, want failed", ebooks[0].Status)
	}
	chapters, err := env.store.ListChaptersByEbook(ebooks[0].ID)
	if err != nil {
		t.Fatalf("list chapters: %v", err)
	}
	if len(chapters) != 0 {
		t.Errorf("got %d chapter rows, want 0", len(chapters))
	}
}

func TestIngestUnsupportedType(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{
		FileName: "book.docx",
		FileData: []byte("irrelevant"),
	})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{InputText: "   "})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestDeleteEbookRemovesRowsAndObjects(t *testing.T) {
	env := newTestEnv(t, nil)
	details, err := env.app.Ingest(context.Background(), "owner-1", IngestInput{InputText: sampleText})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := env.app.GenerateEbook(context.Background(), details.Ebook.ID, ""); err != nil {
		t.Fatalf("GenerateEbook: %v", err)
	}
	if err := env.app.DeleteEbook(context.Background(), details.Ebook.ID); err != nil {
		t.Fatalf("DeleteEbook: %v", err)
	}
	if _, ok, _ := env.store.GetEbook(details.Ebook.ID); ok {
		t.Error("ebook row still present")
	}
	chapters, _ := env.store.ListChaptersByEbook(details.Ebook.ID)
	if len(chapters) != 0 {
		t.Errorf("got %d chapter rows after delete", len(chapters))
	}
	if env.objects.Len() != 0 {
		t.Errorf("%d objects left after delete", env.objects.Len())
	}
}
