// Package notify distributes chapter row changes to subscribed clients so
// the HTTP layer can stream live generation progress.
package notify

import (
	"context"
	"time"

	"harmonicai/pkg/domain"
)

// ChapterEvent describes one chapter status change.
type ChapterEvent struct {
	EbookID       string               `json:"ebookId"`
	ChapterID     string               `json:"chapterId"`
	ChapterNumber int                  `json:"chapterNumber"`
	PartNumber    int                  `json:"partNumber"`
	Status        domain.ChapterStatus `json:"status"`
	AudioURL      string               `json:"audioUrl,omitempty"`
	Error         string               `json:"error,omitempty"`
	At            time.Time            `json:"at"`
}

// Notifier publishes chapter changes and hands out per-ebook subscriptions.
// Subscribe returns a receive channel and a release function; the caller
// must invoke the release function when done (client disconnect or terminal
// progress) so the underlying pub/sub resource is freed.
type Notifier interface {
	Publish(ctx context.Context, event ChapterEvent) error
	Subscribe(ctx context.Context, ebookID string) (<-chan ChapterEvent, func(), error)
}
