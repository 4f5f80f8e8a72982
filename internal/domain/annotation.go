package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinAnnotationRating = 1
	MaxAnnotationRating = 5
)

var ErrInvalidAnnotation = errors.New("invalid annotation")

// Annotation is a reviewer's note on a transcript. It is removed together
// with its transcript.
type Annotation struct {
	ID           int64     `json:"id"`
	TranscriptID int64     `json:"transcript_id"`
	Text         string    `json:"text"`
	Ticker       string    `json:"ticker,omitempty"`
	Subsectors   string    `json:"subsectors,omitempty"`
	DataTitle    string    `json:"datatitle,omitempty"`
	Sentiment    string    `json:"sentiment"`
	Rating       *int      `json:"rating,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnnotationInput holds the editable fields of an annotation.
type AnnotationInput struct {
	Text       string `json:"text"`
	Ticker     string `json:"ticker"`
	Subsectors string `json:"subsectors"`
	DataTitle  string `json:"datatitle"`
	Sentiment  string `json:"sentiment"`
	Rating     *int   `json:"rating"`
}

// Normalize trims the free-text fields and checks that text and sentiment are
// present and that a given rating is between 1 and 5.
func (in AnnotationInput) Normalize() (AnnotationInput, error) {
	in.Text = strings.TrimSpace(in.Text)
	in.Ticker = strings.TrimSpace(in.Ticker)
	in.Subsectors = strings.TrimSpace(in.Subsectors)
	in.DataTitle = strings.TrimSpace(in.DataTitle)
	in.Sentiment = strings.TrimSpace(in.Sentiment)

	if in.Text == "" || in.Sentiment == "" {
		return in, fmt.Errorf("%w: text and sentiment are required", ErrInvalidAnnotation)
	}
	if in.Rating != nil && (*in.Rating < MinAnnotationRating || *in.Rating > MaxAnnotationRating) {
		return in, fmt.Errorf("%w: rating must be an integer between 1 and 5", ErrInvalidAnnotation)
	}
	return in, nil
}
