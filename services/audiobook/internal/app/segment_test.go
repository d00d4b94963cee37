package app

import (
	"strings"
	"testing"

	"harmonicai/pkg/domain"
)

func TestSplitHeadings(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		wantCount  int
		wantTitles []string
	}{
		{
			name:       "arabic numerals",
			text:       "Chapter 1\nIt begins.\n\nChapter 2\nIt continues.",
			wantCount:  2,
			wantTitles: []string{"Chapter 1", "Chapter 2"},
		},
		{
			name:       "roman numerals and parts",
			text:       "PART I\nFirst part.\n\nPart II\nSecond part.\n\nChapter IV\nA chapter.",
			wantCount:  3,
			wantTitles: []string{"PART I", "Part II", "Chapter IV"},
		},
		{
			name:       "preamble before first heading",
			text:       "An introduction.\n\nChapter 1\nBody.\n\nChapter 2\nMore.",
			wantCount:  3,
			wantTitles: []string{"", "Chapter 1", "Chapter 2"},
		},
		{
			name:      "no headings",
			text:      "Just a plain wall of text without structure.",
			wantCount: 1,
		},
		{
			name:      "single heading stays one chapter",
			text:      "Chapter 1\nThe only chapter there is.",
			wantCount: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drafts := splitHeadings(tc.text)
			if len(drafts) != tc.wantCount {
				t.Fatalf("got %d drafts, want %d", len(drafts), tc.wantCount)
			}
			for i, want := range tc.wantTitles {
				if drafts[i].Title != want {
					t.Errorf("draft %d title = %q, want %q", i, drafts[i].Title, want)
				}
			}
		})
	}
}

func TestSplitHeadingsIgnoresMidLineMentions(t *testing.T) {
	text := "Chapter 1\nHe said the chapter 2 was his favourite.\n\nChapter 2\nActual second."
	drafts := splitHeadings(text)
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}
}

func TestSplitPartsShortText(t *testing.T) {
	parts := splitParts("short", 100)
	if len(parts) != 1 || parts[0] != "short" {
		t.Fatalf("parts = %v", parts)
	}
}

func TestSplitPartsReassembles(t *testing.T) {
	text := strings.Repeat("some words here ", 200) // 3200 chars
	text = strings.TrimSpace(text)
	limit := 1000
	parts := splitParts(text, limit)
	want := (len(text) + limit - 1) / limit
	if len(parts) != want {
		t.Fatalf("got %d parts, want %d", len(parts), want)
	}
	if strings.Join(parts, "") != text {
		t.Fatal("concatenated parts do not reproduce the input")
	}
	for i, part := range parts[:len(parts)-1] {
		if len([]rune(part)) > limit {
			t.Errorf("part %d exceeds limit: %d", i, len(part))
		}
		if !strings.HasSuffix(part, " ") {
			t.Errorf("part %d does not end on whitespace: %q", i, part[len(part)-20:])
		}
	}
}

func TestSplitPartsNoWhitespace(t *testing.T) {
	text := strings.Repeat("x", 250)
	parts := splitParts(text, 100)
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	if strings.Join(parts, "") != text {
		t.Fatal("concatenated parts do not reproduce the input")
	}
}

func TestBuildChapters(t *testing.T) {
	drafts := []chapterDraft{
		{Title: "Chapter 1", Text: "First."},
		{Text: "   "},
		{Text: "Third without title."},
	}
	chapters := buildChapters("ebook-1", drafts, 9000)
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].ChapterNumber != 1 || chapters[1].ChapterNumber != 2 {
		t.Errorf("chapter numbers not dense: %d, %d", chapters[0].ChapterNumber, chapters[1].ChapterNumber)
	}
	if chapters[1].Title != "Chapter 2" {
		t.Errorf("fallback title = %q, want %q", chapters[1].Title, "Chapter 2")
	}
	for _, ch := range chapters {
		if ch.Status != domain.ChapterPending {
			t.Errorf("chapter %s status = %q", ch.ID, ch.Status)
		}
		if ch.PartNumber != 1 {
			t.Errorf("chapter %s part = %d", ch.ID, ch.PartNumber)
		}
		if ch.EbookID != "ebook-1" {
			t.Errorf("chapter %s ebook = %q", ch.ID, ch.EbookID)
		}
	}
}

func TestBuildChaptersSplitsLongText(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 500)) // ~2500 chars
	chapters := buildChapters("ebook-1", []chapterDraft{{Title: "Chapter 1", Text: long}}, 1000)
	if len(chapters) != 3 {
		t.Fatalf("got %d parts, want 3", len(chapters))
	}
	var rejoined strings.Builder
	for i, ch := range chapters {
		if ch.ChapterNumber != 1 {
			t.Errorf("part %d chapter number = %d", i, ch.ChapterNumber)
		}
		if ch.PartNumber != i+1 {
			t.Errorf("part %d part number = %d", i, ch.PartNumber)
		}
		if ch.Title != "Chapter 1" {
			t.Errorf("part %d title = %q", i, ch.Title)
		}
		rejoined.WriteString(ch.TextContent)
	}
	if rejoined.String() != long {
		t.Fatal("parts do not reassemble the chapter text")
	}
}
