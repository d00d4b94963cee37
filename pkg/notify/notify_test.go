package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"harmonicai/pkg/domain"
)

func testEvent(ebookID, chapterID string, status domain.ChapterStatus) ChapterEvent {
	return ChapterEvent{
		EbookID:       ebookID,
		ChapterID:     chapterID,
		ChapterNumber: 1,
		PartNumber:    1,
		Status:        status,
		At:            time.Now().UTC(),
	}
}

func TestMemoryNotifierFanOut(t *testing.T) {
	n := NewMemoryNotifier()
	ctx := context.Background()

	events, release, err := n.Subscribe(ctx, "ebook-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, otherRelease, err := n.Subscribe(ctx, "ebook-2")
	if err != nil {
		t.Fatalf("Subscribe other: %v", err)
	}
	defer otherRelease()

	if err := n.Publish(ctx, testEvent("ebook-1", "ch-1", domain.ChapterComplete)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-events:
		if event.ChapterID != "ch-1" || event.Status != domain.ChapterComplete {
			t.Errorf("event = %+v", event)
		}
	default:
		t.Fatal("no event delivered to ebook-1 subscriber")
	}
	select {
	case event := <-other:
		t.Fatalf("ebook-2 subscriber received foreign event: %+v", event)
	default:
	}

	release()
	if _, open := <-events; open {
		t.Error("channel not closed after release")
	}
	// Publishing after release must not panic or deliver.
	if err := n.Publish(ctx, testEvent("ebook-1", "ch-2", domain.ChapterErrorTTS)); err != nil {
		t.Fatalf("Publish after release: %v", err)
	}
}

func TestRedisNotifierRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	n, err := NewRedisNotifier(client, "test:chapters")
	if err != nil {
		t.Fatalf("NewRedisNotifier: %v", err)
	}
	ctx := context.Background()

	events, release, err := n.Subscribe(ctx, "ebook-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer release()

	sent := testEvent("ebook-1", "ch-1", domain.ChapterProcessingTTS)
	if err := n.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-events:
		if event.ChapterID != sent.ChapterID || event.Status != sent.Status {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisNotifierScopesChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	n, err := NewRedisNotifier(client, "test:chapters")
	if err != nil {
		t.Fatalf("NewRedisNotifier: %v", err)
	}
	ctx := context.Background()

	events, release, err := n.Subscribe(ctx, "ebook-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer release()

	if err := n.Publish(ctx, testEvent("ebook-2", "ch-9", domain.ChapterComplete)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case event := <-events:
		t.Fatalf("received event for another ebook: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisNotifierRequiresClient(t *testing.T) {
	if _, err := NewRedisNotifier(nil, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}
