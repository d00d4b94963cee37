// Package tts abstracts the external speech synthesis provider behind a
// small interface so orchestration code and tests never talk to the real
// HTTP API directly.
package tts

import "context"

// Audio is the result of one synthesis call.
type Audio struct {
	Data        []byte
	ContentType string
	// Seconds is a provider-reported duration when available, 0 otherwise.
	Seconds float64
}

// Synthesizer converts plain text into speech audio with a given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (Audio, error)
}
