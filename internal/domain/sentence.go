package domain

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// The English Punkt model ships with the package; building it once parses the
// embedded training data.
var sentenceTokenizer = sync.OnceValues(func() (*sentences.DefaultSentenceTokenizer, error) {
	return english.NewSentenceTokenizer(nil)
})

const paragraphBreak = "\n\n"

// SplitSentences breaks transcribed text into sentences with the English Punkt
// model, which knows abbreviations, initials and numbers from its training
// data. A blank line always ends a sentence and inner whitespace is collapsed.
func SplitSentences(text string) []string {
	tokenizer, err := sentenceTokenizer()

	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), paragraphBreak) {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		if err != nil {
			out = append(out, para)
			continue
		}
		for _, s := range tokenizer.Tokenize(para) {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
