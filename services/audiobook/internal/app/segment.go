package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"harmonicai/pkg/domain"
)

// headingPattern matches conventional chapter headings at line start, with
// arabic or roman numerals ("Chapter 7", "PART IV").
var headingPattern = regexp.MustCompile(`(?mi)^[ \t]{0,3}(chapter|part)[ \t]+([0-9]+|[ivxlc]+)\b.*$`)

// chapterDraft is a segmented unit before numbering and part splitting.
type chapterDraft struct {
	Title string
	Text  string
}

// splitHeadings segments unstructured text on chapter headings. The heading
// line stays inside the chapter text and doubles as its title. Text with
// fewer than two headings comes back as a single untitled draft.
func splitHeadings(text string) []chapterDraft {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	locs := headingPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []chapterDraft{{Text: text}}
	}
	var drafts []chapterDraft
	if preamble := strings.TrimSpace(text[:locs[0][0]]); preamble != "" {
		drafts = append(drafts, chapterDraft{Text: preamble})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := strings.TrimSpace(text[loc[0]:end])
		if segment == "" {
			continue
		}
		title := strings.TrimSpace(text[loc[0]:loc[1]])
		drafts = append(drafts, chapterDraft{Title: title, Text: segment})
	}
	if len(drafts) < 2 {
		return []chapterDraft{{Text: text, Title: firstDraftTitle(drafts)}}
	}
	return drafts
}

func firstDraftTitle(drafts []chapterDraft) string {
	if len(drafts) == 1 {
		return drafts[0].Title
	}
	return ""
}

// splitParts cuts text into pieces of at most limit runes. Cuts prefer the
// last whitespace before the limit so words survive intact; the pieces
// concatenate back to the input exactly.
func splitParts(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	start := 0
	for start < len(runes) {
		end := start + limit
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			break
		}
		cut := end
		for i := end; i > start; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[start:cut]))
		start = cut
	}
	return parts
}

// buildChapters numbers drafts densely from 1, drops empty ones, splits
// over-long text into parts, and produces insert-ready chapter rows.
func buildChapters(ebookID string, drafts []chapterDraft, limit int) []domain.Chapter {
	now := time.Now().UTC()
	var chapters []domain.Chapter
	number := 0
	for _, draft := range drafts {
		text := strings.TrimSpace(draft.Text)
		if text == "" {
			continue
		}
		number++
		title := strings.TrimSpace(draft.Title)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", number)
		}
		for part, partText := range splitParts(text, limit) {
			chapters = append(chapters, domain.Chapter{
				ID:            uuid.NewString(),
				EbookID:       ebookID,
				ChapterNumber: number,
				PartNumber:    part + 1,
				Title:         title,
				TextContent:   partText,
				Status:        domain.ChapterPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}
	return chapters
}

// titleHint returns the first line of a document when it looks like a
// chapter heading, for spine documents that carry their own headings.
func titleHint(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if headingPattern.MatchString(line) {
		return line
	}
	return ""
}
