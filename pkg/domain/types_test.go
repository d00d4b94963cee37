package domain

import "testing"

func chaptersWith(statuses ...ChapterStatus) []Chapter {
	chapters := make([]Chapter, 0, len(statuses))
	for i, status := range statuses {
		chapters = append(chapters, Chapter{ChapterNumber: i + 1, PartNumber: 1, Status: status})
	}
	return chapters
}

func TestDeriveEbookStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []ChapterStatus
		want     EbookStatus
	}{
		{"no chapters", nil, EbookProcessed},
		{"all complete", []ChapterStatus{ChapterComplete, ChapterComplete}, EbookComplete},
		{"pending remains", []ChapterStatus{ChapterComplete, ChapterPending}, EbookGeneratingAudio},
		{"processing remains", []ChapterStatus{ChapterProcessingTTS}, EbookGeneratingAudio},
		{"errors and open work", []ChapterStatus{ChapterErrorTTS, ChapterPending}, EbookGeneratingAudio},
		{"errors only", []ChapterStatus{ChapterComplete, ChapterErrorTTS}, EbookProcessedWithErrors},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveEbookStatus(chaptersWith(tc.statuses...)); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestComputeProgress(t *testing.T) {
	p := ComputeProgress(chaptersWith(ChapterComplete, ChapterComplete, ChapterErrorTTS, ChapterPending))
	if p.TotalChapters != 4 || p.CompletedChapters != 2 || p.FailedChapters != 1 {
		t.Fatalf("progress = %+v", p)
	}
	if p.Percent != 50 {
		t.Errorf("percent = %v", p.Percent)
	}
	if p.Terminal {
		t.Error("progress should not be terminal with a pending chapter")
	}

	done := ComputeProgress(chaptersWith(ChapterComplete, ChapterErrorTTS))
	if !done.Terminal {
		t.Error("progress should be terminal when every chapter settled")
	}
}

func TestChapterStatusTerminal(t *testing.T) {
	if !ChapterComplete.Terminal() || !ChapterErrorTTS.Terminal() {
		t.Error("complete and error_tts are terminal")
	}
	if ChapterPending.Terminal() || ChapterProcessingTTS.Terminal() {
		t.Error("pending and processing_tts are not terminal")
	}
}
