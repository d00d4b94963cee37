package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"harmonicai/internal/util"
	"harmonicai/pkg/domain"
	"harmonicai/pkg/notify"
)

// ErrChapterNotPending is returned when a single-chapter generation request
// targets a chapter that is not awaiting synthesis.
var ErrChapterNotPending = errors.New("chapter is not awaiting synthesis")

// GenerateEbook synthesizes audio for every chapter of the ebook that is
// pending or previously failed. Chapters are claimed in one atomic update so
// concurrent invocations never synthesize the same chapter twice; an ebook
// whose chapters are all complete yields an empty batch. Per-chapter failures
// are recorded on the row and never abort sibling chapters.
func (a *App) GenerateEbook(ctx context.Context, ebookID, voiceID string) (domain.BatchResult, error) {
	if _, ok, err := a.store.GetEbook(ebookID); err != nil {
		return domain.BatchResult{}, err
	} else if !ok {
		return domain.BatchResult{}, ErrEbookNotFound
	}
	voice := a.voiceOrDefault(voiceID)

	claimed, err := a.store.ClaimChapters(ebookID)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("claim chapters: %w", err)
	}
	if len(claimed) == 0 {
		return domain.BatchResult{
			Message: "no chapters awaiting audio generation",
			Results: []domain.ChapterResult{},
		}, nil
	}
	if err := a.store.SetEbookStatus(ebookID, domain.EbookGeneratingAudio, ""); err != nil {
		return domain.BatchResult{}, fmt.Errorf("mark generating: %w", err)
	}
	for _, ch := range claimed {
		a.publish(ctx, ch, domain.ChapterProcessingTTS, "", "")
	}

	results := make([]domain.ChapterResult, len(claimed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, ch := range claimed {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = a.synthesizeChapter(gctx, ch, voice)
			return nil
		})
	}
	_ = g.Wait()

	batch := domain.BatchResult{Results: results}
	for _, res := range results {
		if res.Status == domain.ChapterComplete {
			batch.SuccessfulCount++
		} else {
			batch.FailedCount++
		}
	}
	batch.Message = fmt.Sprintf("audio generation finished: %d succeeded, %d failed",
		batch.SuccessfulCount, batch.FailedCount)

	if err := a.refreshEbookStatus(ctx, ebookID); err != nil {
		util.LoggerFromContext(ctx).Error("refresh ebook status", "ebook_id", ebookID, "error", err)
	}
	return batch, nil
}

// GenerateChapter synthesizes a single chapter, claiming it first so a
// concurrent batch cannot pick it up as well.
func (a *App) GenerateChapter(ctx context.Context, chapterID, voiceID string) (domain.ChapterResult, error) {
	if _, ok, err := a.store.GetChapter(chapterID); err != nil {
		return domain.ChapterResult{}, err
	} else if !ok {
		return domain.ChapterResult{}, ErrChapterNotFound
	}
	chapter, ok, err := a.store.ClaimChapter(chapterID)
	if err != nil {
		return domain.ChapterResult{}, fmt.Errorf("claim chapter: %w", err)
	}
	if !ok {
		return domain.ChapterResult{}, ErrChapterNotPending
	}
	if err := a.store.SetEbookStatus(chapter.EbookID, domain.EbookGeneratingAudio, ""); err != nil {
		return domain.ChapterResult{}, fmt.Errorf("mark generating: %w", err)
	}
	a.publish(ctx, chapter, domain.ChapterProcessingTTS, "", "")

	result := a.synthesizeChapter(ctx, chapter, a.voiceOrDefault(voiceID))

	if err := a.refreshEbookStatus(ctx, chapter.EbookID); err != nil {
		util.LoggerFromContext(ctx).Error("refresh ebook status", "ebook_id", chapter.EbookID, "error", err)
	}
	return result, nil
}

// synthesizeChapter runs one chapter through provider, object storage and
// the status update. Every failure path records error_tts with the detail so
// the chapter stays retryable.
func (a *App) synthesizeChapter(ctx context.Context, chapter domain.Chapter, voice string) domain.ChapterResult {
	logger := util.LoggerFromContext(ctx)
	audio, err := a.synth.Synthesize(ctx, chapter.TextContent, voice)
	if err != nil {
		return a.failChapter(ctx, chapter, fmt.Sprintf("synthesis failed: %v", err))
	}
	key := fmt.Sprintf("ebooks/%s/chapters/%s_%s.mp3", chapter.EbookID, chapter.ID, uuid.NewString())
	if err := a.objects.Put(ctx, key, bytes.NewReader(audio.Data), int64(len(audio.Data)), audio.ContentType); err != nil {
		return a.failChapter(ctx, chapter, fmt.Sprintf("audio upload failed: %v", err))
	}
	audioURL := a.objects.PublicURL(key)
	meta := map[string]string{
		"voiceId":     voice,
		"objectKey":   key,
		"contentType": audio.ContentType,
	}
	if err := a.store.SetChapterAudio(chapter.ID, audioURL, audio.Seconds, meta); err != nil {
		return a.failChapter(ctx, chapter, fmt.Sprintf("saving audio reference failed: %v", err))
	}
	logger.Info("chapter audio generated",
		"ebook_id", chapter.EbookID,
		"chapter_id", chapter.ID,
		"chapter", chapter.ChapterNumber,
		"part", chapter.PartNumber,
	)
	a.publish(ctx, chapter, domain.ChapterComplete, audioURL, "")
	return domain.ChapterResult{
		ChapterID: chapter.ID,
		Status:    domain.ChapterComplete,
		AudioURL:  audioURL,
	}
}

func (a *App) failChapter(ctx context.Context, chapter domain.Chapter, detail string) domain.ChapterResult {
	util.LoggerFromContext(ctx).Warn("chapter audio generation failed",
		"ebook_id", chapter.EbookID,
		"chapter_id", chapter.ID,
		"error", detail,
	)
	if err := a.store.SetChapterError(chapter.ID, detail); err != nil {
		util.LoggerFromContext(ctx).Error("record chapter error", "chapter_id", chapter.ID, "error", err)
	}
	a.publish(ctx, chapter, domain.ChapterErrorTTS, "", detail)
	return domain.ChapterResult{
		ChapterID: chapter.ID,
		Status:    domain.ChapterErrorTTS,
		Error:     detail,
	}
}

// refreshEbookStatus re-derives the ebook status from its chapter rows.
func (a *App) refreshEbookStatus(ctx context.Context, ebookID string) error {
	chapters, err := a.store.ListChaptersByEbook(ebookID)
	if err != nil {
		return err
	}
	status := domain.DeriveEbookStatus(chapters)
	message := ""
	if status == domain.EbookProcessedWithErrors {
		message = "some chapters failed audio generation"
	}
	return a.store.SetEbookStatus(ebookID, status, message)
}

func (a *App) publish(ctx context.Context, chapter domain.Chapter, status domain.ChapterStatus, audioURL, errDetail string) {
	event := notify.ChapterEvent{
		EbookID:       chapter.EbookID,
		ChapterID:     chapter.ID,
		ChapterNumber: chapter.ChapterNumber,
		PartNumber:    chapter.PartNumber,
		Status:        status,
		AudioURL:      audioURL,
		Error:         errDetail,
		At:            time.Now().UTC(),
	}
	if err := a.notifier.Publish(ctx, event); err != nil {
		util.LoggerFromContext(ctx).Warn("publish chapter event", "chapter_id", chapter.ID, "error", err)
	}
}

func (a *App) voiceOrDefault(voiceID string) string {
	if voiceID == "" {
		return a.defaultVoice
	}
	return voiceID
}
