package notify

import (
	"context"
	"sync"
)

// MemoryNotifier is an in-process Notifier for tests and single-node runs.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string][]chan ChapterEvent
}

// NewMemoryNotifier initializes an empty notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string][]chan ChapterEvent)}
}

// Publish fans the event out to current subscribers of the ebook. Slow
// subscribers drop events rather than block the publisher.
func (n *MemoryNotifier) Publish(_ context.Context, event ChapterEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[event.EbookID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber channel for the ebook.
func (n *MemoryNotifier) Subscribe(_ context.Context, ebookID string) (<-chan ChapterEvent, func(), error) {
	ch := make(chan ChapterEvent, 16)
	n.mu.Lock()
	n.subs[ebookID] = append(n.subs[ebookID], ch)
	n.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			subs := n.subs[ebookID]
			for i, sub := range subs {
				if sub == ch {
					n.subs[ebookID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, release, nil
}
