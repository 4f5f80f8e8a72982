package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

const fallbackName = "file"

// replaced holds characters that would break a Content-Disposition header or
// act as path separators.
var replaced = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
}

// SanitizeFilename makes a client-supplied name safe to store, log and echo
// back in headers. Dangerous and control characters become underscores,
// Unicode is kept, and names longer than 255 bytes are cut while keeping the
// extension. Names with nothing left return "file".
func SanitizeFilename(name string) string {
	result := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 || r == 127 || replaced[r] {
			return '_'
		}
		return r
	}, name))

	if strings.Trim(result, "_") == "" {
		return fallbackName
	}
	if len(result) > maxFilenameLength {
		result = truncateKeepingExt(result)
	}
	return result
}

// TranscriptFilename derives the download name of a transcript from the
// display name of its source: "call.mp4" becomes "call.txt".
func TranscriptFilename(name string) string {
	base := strings.TrimSuffix(SanitizeFilename(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = fallbackName
	}
	return SanitizeFilename(base + ".txt")
}

func truncateKeepingExt(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}
	return truncateToBytes(strings.TrimSuffix(name, ext), maxFilenameLength-len(ext)) + ext
}

// truncateToBytes cuts s to at most maxBytes without splitting a rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// ContentDisposition returns a header value with a sanitized filename.
func ContentDisposition(filename string, inline bool) string {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, SanitizeFilename(filename))
}
