// Package validation checks untrusted upload input before it reaches the
// transcription pipeline.
package validation

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// ErrDisallowedFileType is returned when a file is not an audio or video
// container the pipeline can segment.
var ErrDisallowedFileType = errors.New("file type not allowed")

// Container describes a detected media container.
type Container struct {
	MIME string
	// Ext is the extension the upload is stored under, so segments keep the
	// source container.
	Ext string
}

var allowedContainers = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/webm":       ".webm",
	"video/x-matroska": ".mkv",
	"video/avi":        ".avi",
	"video/mp2t":       ".ts",
	"audio/mp4":        ".m4a",
	"audio/mpeg":       ".mp3",
	"audio/ogg":        ".ogg",
	"application/ogg":  ".ogg",
	"audio/wave":       ".wav",
	"audio/flac":       ".flac",
	"audio/aac":        ".aac",
}

const sniffLen = 512

// DetectContainer reads the first bytes of r, identifies the container and
// rewinds r. It returns ErrDisallowedFileType for anything that is not an
// allowed audio or video container.
func DetectContainer(r io.ReadSeeker) (Container, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Container{}, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Container{}, err
	}
	if n == 0 {
		return Container{MIME: "application/octet-stream"}, ErrDisallowedFileType
	}

	mime := sniff(buf[:n])
	ext, ok := allowedContainers[mime]
	if !ok {
		return Container{MIME: mime}, ErrDisallowedFileType
	}
	return Container{MIME: mime, Ext: ext}, nil
}

// sniff handles the containers http.DetectContentType misses or reports too
// coarsely, then falls back to it.
func sniff(buf []byte) string {
	switch {
	case bytes.HasPrefix(buf, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML: the DocType element names webm or matroska.
		if bytes.Contains(buf, []byte("webm")) {
			return "video/webm"
		}
		return "video/x-matroska"
	case bytes.HasPrefix(buf, []byte("fLaC")):
		return "audio/flac"
	case bytes.HasPrefix(buf, []byte("ID3")):
		return "audio/mpeg"
	case len(buf) >= 2 && buf[0] == 0xFF && (buf[1]&0xF6) == 0xF0:
		// ADTS AAC: sync word with layer bits 00
		return "audio/aac"
	case len(buf) >= 2 && buf[0] == 0xFF && (buf[1]&0xE0) == 0xE0:
		// MPEG audio frame sync
		return "audio/mpeg"
	case len(buf) >= 12 && bytes.Equal(buf[0:4], []byte("RIFF")):
		switch string(buf[8:12]) {
		case "WAVE":
			return "audio/wave"
		case "AVI ":
			return "video/avi"
		}
	case len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")):
		switch string(buf[8:12]) {
		case "qt  ":
			return "video/quicktime"
		case "M4A ", "M4B ":
			return "audio/mp4"
		default:
			return "video/mp4"
		}
	case len(buf) >= 189 && buf[0] == 0x47 && buf[188] == 0x47:
		// MPEG transport stream: sync byte every 188 bytes
		return "video/mp2t"
	}
	return http.DetectContentType(buf)
}
