package domain

import (
	"errors"
	"strings"
	"time"
)

type Consultant struct {
	Name   string   `json:"name"`
	Rating *float64 `json:"rating,omitempty"`
}

type TranscriptRecord struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Content      string      `json:"content"`
	Consultant   *Consultant `json:"consultant,omitempty"`
	SourceDigest string      `json:"source_digest,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// IsComplete reports whether the pipeline has filled in the content. A
// completed transcript may still be empty when every segment was silent.
func (t *TranscriptRecord) IsComplete() bool {
	return t.CompletedAt != nil
}

// Placeholder is what intake knows about a transcript before any work runs.
type Placeholder struct {
	Name         string
	Consultant   *Consultant
	SourceDigest string
}

// Result is returned to the intake caller on success.
type Result struct {
	ID         int64  `json:"id"`
	Transcript string `json:"transcript"`
}

const segmentSeparator = "\n\n"

// Assemble concatenates segment texts, already ordered by index, separated by
// a blank line.
func Assemble(texts []string) string {
	return strings.TrimSpace(strings.Join(texts, segmentSeparator))
}

var ErrEmptyTranscript = errors.New("no transcript content provided")

// ManualText picks the text of a hand-entered transcript: content when given,
// otherwise lines joined by newlines.
func ManualText(content string, lines []string) (string, error) {
	text := content
	if strings.TrimSpace(text) == "" {
		text = strings.Join(lines, "\n")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
