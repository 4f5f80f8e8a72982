package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotationInput_Normalize(t *testing.T) {
	rating := func(v int) *int { return &v }

	tests := []struct {
		name    string
		in      AnnotationInput
		want    AnnotationInput
		wantErr string
	}{
		{
			name: "minimal",
			in:   AnnotationInput{Text: "Guidance raised", Sentiment: "positive"},
			want: AnnotationInput{Text: "Guidance raised", Sentiment: "positive"},
		},
		{
			name: "fields trimmed",
			in:   AnnotationInput{Text: " Margins ", Ticker: " ACME ", Subsectors: " chips ", DataTitle: " Q3 ", Sentiment: " negative ", Rating: rating(2)},
			want: AnnotationInput{Text: "Margins", Ticker: "ACME", Subsectors: "chips", DataTitle: "Q3", Sentiment: "negative", Rating: rating(2)},
		},
		{name: "rating lower bound", in: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(1)}, want: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(1)}},
		{name: "rating upper bound", in: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(5)}, want: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(5)}},
		{name: "missing text", in: AnnotationInput{Sentiment: "neutral"}, wantErr: "text and sentiment are required"},
		{name: "blank sentiment", in: AnnotationInput{Text: "t", Sentiment: "  "}, wantErr: "text and sentiment are required"},
		{name: "rating zero", in: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(0)}, wantErr: "rating must be an integer between 1 and 5"},
		{name: "rating six", in: AnnotationInput{Text: "t", Sentiment: "s", Rating: rating(6)}, wantErr: "rating must be an integer between 1 and 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidAnnotation)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
