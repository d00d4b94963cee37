package domain

import "time"

type EbookStatus string

const (
	EbookProcessing          EbookStatus = "processing"
	EbookProcessed           EbookStatus = "processed"
	EbookGeneratingAudio     EbookStatus = "generating_audio"
	EbookComplete            EbookStatus = "complete"
	EbookProcessedWithErrors EbookStatus = "processed_with_errors"
	EbookFailed              EbookStatus = "failed"
)

type ChapterStatus string

const (
	ChapterPending       ChapterStatus = "pending"
	ChapterProcessingTTS ChapterStatus = "processing_tts"
	ChapterComplete      ChapterStatus = "complete"
	ChapterErrorTTS      ChapterStatus = "error_tts"
)

// Terminal reports whether a chapter needs no further audio work.
func (s ChapterStatus) Terminal() bool {
	return s == ChapterComplete || s == ChapterErrorTTS
}

type Ebook struct {
	ID               string      `json:"id"`
	OwnerID          string      `json:"ownerId"`
	Title            string      `json:"title"`
	Author           string      `json:"author,omitempty"`
	OriginalFileName string      `json:"originalFileName,omitempty"`
	OriginalFileType string      `json:"originalFileType,omitempty"`
	TextPreview      string      `json:"textPreview,omitempty"`
	Status           EbookStatus `json:"status"`
	StatusMessage    string      `json:"statusMessage,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

type Chapter struct {
	ID            string            `json:"id"`
	EbookID       string            `json:"ebookId"`
	ChapterNumber int               `json:"chapterNumber"`
	PartNumber    int               `json:"partNumber"`
	Title         string            `json:"title,omitempty"`
	TextContent   string            `json:"textContent"`
	AudioURL      string            `json:"audioUrl,omitempty"`
	AudioSeconds  float64           `json:"audioDurationSeconds,omitempty"`
	AudioMeta     map[string]string `json:"audioMeta,omitempty"`
	Status        ChapterStatus     `json:"status"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// ChapterResult is the per-chapter entry of a generation batch result.
type ChapterResult struct {
	ChapterID string        `json:"chapterId"`
	Status    ChapterStatus `json:"status"`
	AudioURL  string        `json:"audioUrl,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// BatchResult summarizes one audio generation invocation.
type BatchResult struct {
	Message         string          `json:"message"`
	SuccessfulCount int             `json:"successfulCount"`
	FailedCount     int             `json:"failedCount"`
	Results         []ChapterResult `json:"results"`
}

// Progress is the aggregate client-observable generation state of an ebook.
type Progress struct {
	TotalChapters     int     `json:"totalChapters"`
	CompletedChapters int     `json:"completedChapters"`
	FailedChapters    int     `json:"failedChapters"`
	Percent           float64 `json:"percent"`
	Terminal          bool    `json:"terminal"`
}

// DeriveEbookStatus reduces chapter statuses to the owning ebook status:
// complete when every chapter is complete, processed_with_errors when at
// least one chapter failed and none are still pending or processing,
// generating_audio while audio work remains.
func DeriveEbookStatus(chapters []Chapter) EbookStatus {
	if len(chapters) == 0 {
		return EbookProcessed
	}
	var open, errored int
	for _, ch := range chapters {
		switch ch.Status {
		case ChapterPending, ChapterProcessingTTS:
			open++
		case ChapterErrorTTS:
			errored++
		}
	}
	switch {
	case open > 0:
		return EbookGeneratingAudio
	case errored > 0:
		return EbookProcessedWithErrors
	default:
		return EbookComplete
	}
}

// ComputeProgress reduces chapter statuses to an aggregate progress view.
func ComputeProgress(chapters []Chapter) Progress {
	p := Progress{TotalChapters: len(chapters)}
	for _, ch := range chapters {
		switch ch.Status {
		case ChapterComplete:
			p.CompletedChapters++
		case ChapterErrorTTS:
			p.FailedChapters++
		}
	}
	if p.TotalChapters > 0 {
		p.Percent = float64(p.CompletedChapters) / float64(p.TotalChapters) * 100
	}
	p.Terminal = p.CompletedChapters+p.FailedChapters == p.TotalChapters
	return p
}
