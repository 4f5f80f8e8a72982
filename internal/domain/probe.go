package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	NbStreams  int    `json:"nb_streams"`
}

type ProbeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

func (p *ProbeResult) AudioStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

func (p *ProbeResult) HasAudio() bool {
	return p.AudioStream() != nil
}

// Duration prefers the container duration and falls back to the audio stream.
func (p *ProbeResult) Duration() time.Duration {
	secs := ParseSeconds(p.Format.Duration)
	if secs == 0 {
		if as := p.AudioStream(); as != nil {
			secs = ParseSeconds(as.Duration)
		}
	}
	return time.Duration(secs * float64(time.Second))
}

func ParseSeconds(s string) float64 {
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// SegmentSpans returns the expected length of each segment when total is cut
// every segment. All spans but the last equal segment.
func SegmentSpans(total, segment time.Duration) []time.Duration {
	if total <= 0 || segment <= 0 {
		return nil
	}
	n := int(math.Ceil(float64(total) / float64(segment)))
	spans := make([]time.Duration, n)
	for i := range n {
		spans[i] = segment
	}
	if rem := total - time.Duration(n-1)*segment; rem > 0 {
		spans[n-1] = rem
	}
	return spans
}

func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds <= 0 {
		return "00:00"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
