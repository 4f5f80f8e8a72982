package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
)

const (
	segmentPrefix    = "segment_"
	defaultContainer = ".mkv"
	maxOutputPreview = 2000

	audioSampleRate = "16000"
	audioChannels   = "1"
	audioCodec      = "pcm_s16le"
)

var ErrNoAudioStream = errors.New("no audio stream")

type Converter struct {
	runner  Runner
	ffmpeg  string
	ffprobe string
}

func NewConverter() *Converter {
	return &Converter{runner: execRunner{}, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

func (c *Converter) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	stdout, stderr, err := c.runner.Run(ctx, c.ffprobe, args...)
	if err != nil {
		return nil, &CommandError{Name: "ffprobe", Output: logger.Preview(string(stderr), maxOutputPreview), Err: err}
	}

	var probe domain.ProbeResult
	if err := json.Unmarshal(stdout, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &probe, nil
}

// Segment stream-copies inputPath into consecutive files of segmentSeconds in
// outputDir. On any failure no segment file is left behind.
func (c *Converter) Segment(ctx context.Context, inputPath, outputDir string, segmentSeconds int) ([]string, error) {
	fail := func(output string, err error) ([]string, error) {
		return nil, &domain.SegmentationError{Source: inputPath, Output: output, Err: err}
	}

	if err := validatePath(inputPath); err != nil {
		return fail("", fmt.Errorf("invalid input path: %w", err))
	}
	if err := validatePath(outputDir); err != nil {
		return fail("", fmt.Errorf("invalid output dir: %w", err))
	}
	if segmentSeconds <= 0 {
		return fail("", fmt.Errorf("invalid segment duration %d", segmentSeconds))
	}

	probe, err := c.Probe(ctx, inputPath)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return fail(cmdErr.Output, fmt.Errorf("probe: %w", cmdErr.Err))
		}
		return fail("", fmt.Errorf("probe: %w", err))
	}
	if !probe.HasAudio() {
		return fail("", ErrNoAudioStream)
	}

	ext := containerExt(inputPath)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", inputPath,
		"-map", "0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		"-y",
		filepath.Join(outputDir, segmentPrefix+"%05d"+ext),
	}
	logger.Debug.Printf("ffmpeg %s", logger.SanitizeForLog(strings.Join(args, " ")))

	_, stderr, err := c.runner.Run(ctx, c.ffmpeg, args...)
	if err != nil {
		removeSegments(outputDir, ext)
		return fail(logger.Preview(string(stderr), maxOutputPreview), err)
	}

	paths, err := collectSegments(outputDir, ext)
	if err != nil {
		removeSegments(outputDir, ext)
		return fail("", err)
	}

	logger.Debug.Printf("segmented %s (%s) into %d files",
		logger.SanitizeForLog(filepath.Base(inputPath)), domain.FormatDuration(probe.Duration()), len(paths))
	return paths, nil
}

// Extract writes the first audio stream of segmentPath to audioPath as mono
// 16 kHz signed 16-bit PCM WAV.
func (c *Converter) Extract(ctx context.Context, index int, segmentPath, audioPath string) error {
	if err := validatePath(segmentPath); err != nil {
		return &domain.AudioExtractionError{SegmentIndex: index, Err: fmt.Errorf("invalid input path: %w", err)}
	}
	if err := validatePath(audioPath); err != nil {
		return &domain.AudioExtractionError{SegmentIndex: index, Err: fmt.Errorf("invalid output path: %w", err)}
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", segmentPath,
		"-map", "0:a:0",
		"-vn",
		"-ac", audioChannels,
		"-ar", audioSampleRate,
		"-c:a", audioCodec,
		"-f", "wav",
		"-y",
		audioPath,
	}

	_, stderr, err := c.runner.Run(ctx, c.ffmpeg, args...)
	if err != nil {
		_ = os.Remove(audioPath)
		return &domain.AudioExtractionError{
			SegmentIndex: index,
			Output:       logger.Preview(string(stderr), maxOutputPreview),
			Err:          err,
		}
	}
	return nil
}

func containerExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || ext == "." {
		return defaultContainer
	}
	return ext
}

// collectSegments lists the segment files in dir ordered by index and checks
// that the indices run 0..n-1 without gaps.
func collectSegments(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}

	type indexed struct {
		index int
		path  string
	}
	var found []indexed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), ext))
		if err != nil {
			continue
		}
		found = append(found, indexed{index: n, path: filepath.Join(dir, name)})
	}

	if len(found) == 0 {
		return nil, errors.New("no segments produced")
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	paths := make([]string, len(found))
	for i, f := range found {
		if f.index != i {
			return nil, fmt.Errorf("segment %d missing", i)
		}
		paths[i] = f.path
	}
	return paths, nil
}

func removeSegments(dir, ext string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), segmentPrefix) && strings.HasSuffix(e.Name(), ext) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				logger.Warn.Printf("remove partial segment %s: %v", e.Name(), err)
			}
		}
	}
}

var (
	_ port.MediaProber    = (*Converter)(nil)
	_ port.Segmenter      = (*Converter)(nil)
	_ port.AudioExtractor = (*Converter)(nil)
)
