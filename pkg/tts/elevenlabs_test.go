package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var gotPath, gotKey, gotAccept string
	var gotBody synthesisRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer ts.Close()

	client, err := NewElevenLabsClient(ElevenLabsConfig{APIKey: "key-1", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewElevenLabsClient: %v", err)
	}
	audio, err := client.Synthesize(context.Background(), "hello world", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != "mp3-bytes" || audio.ContentType != "audio/mpeg" {
		t.Errorf("audio = %+v", audio)
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "key-1" || gotAccept != "audio/mpeg" {
		t.Errorf("headers = %q, %q", gotKey, gotAccept)
	}
	if gotBody.Text != "hello world" || gotBody.ModelID != "eleven_multilingual_v2" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.5 || gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Errorf("voice settings = %+v", gotBody.VoiceSettings)
	}
}

func TestElevenLabsSynthesizeProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	defer ts.Close()

	client, err := NewElevenLabsClient(ElevenLabsConfig{APIKey: "key-1", BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("NewElevenLabsClient: %v", err)
	}
	_, err = client.Synthesize(context.Background(), "hello", "voice-1")
	if err == nil {
		t.Fatal("expected provider error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error does not carry provider detail: %v", err)
	}
}

func TestElevenLabsRequiresAPIKey(t *testing.T) {
	if _, err := NewElevenLabsClient(ElevenLabsConfig{}); err != ErrAPIKeyRequired {
		t.Fatalf("err = %v, want ErrAPIKeyRequired", err)
	}
}

func TestElevenLabsRejectsEmptyInput(t *testing.T) {
	client, err := NewElevenLabsClient(ElevenLabsConfig{APIKey: "key-1"})
	if err != nil {
		t.Fatalf("NewElevenLabsClient: %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "", "voice-1"); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := client.Synthesize(context.Background(), "text", ""); err == nil {
		t.Error("expected error for empty voice id")
	}
}
