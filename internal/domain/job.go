package domain

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusSegmenting   JobStatus = "segmenting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusAssembling   JobStatus = "assembling"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
)

// Stage is the orchestrator's position in a run.
type Stage string

const (
	StageCreated     Stage = "created"
	StageSegmenting  Stage = "segmenting"
	StageDispatching Stage = "dispatching"
	StageJoining     Stage = "joining"
	StageAssembling  Stage = "assembling"
	StagePersisting  Stage = "persisting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

var stageNext = map[Stage]Stage{
	StageCreated:     StageSegmenting,
	StageSegmenting:  StageDispatching,
	StageDispatching: StageJoining,
	StageJoining:     StageAssembling,
	StageAssembling:  StagePersisting,
	StagePersisting:  StageCompleted,
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Status maps a stage onto the coarser job status.
func (s Stage) Status() JobStatus {
	switch s {
	case StageCreated:
		return JobStatusPending
	case StageSegmenting:
		return JobStatusSegmenting
	case StageDispatching, StageJoining:
		return JobStatusTranscribing
	case StageAssembling, StagePersisting:
		return JobStatusAssembling
	case StageCompleted:
		return JobStatusDone
	default:
		return JobStatusFailed
	}
}

type SegmentStatus string

const (
	SegmentStatusPending      SegmentStatus = "pending"
	SegmentStatusExtracting   SegmentStatus = "extracting"
	SegmentStatusTranscribing SegmentStatus = "transcribing"
	SegmentStatusDone         SegmentStatus = "done"
	SegmentStatusFailed       SegmentStatus = "failed"
)

type SegmentDescriptor struct {
	Index      int
	SourcePath string
	AudioPath  string
	Text       string
	Status     SegmentStatus
}

// SegmentResult is the outcome of one segment worker: Text on success, Err
// otherwise.
type SegmentResult struct {
	Index int
	Text  string
	Err   error
}

type TranscriptJob struct {
	ID           string
	SourcePath   string
	TranscriptID int64
	SourceDigest string
	Segments     []SegmentDescriptor
	Stage        Stage
	Err          error
	CreatedAt    time.Time
}

func NewTranscriptJob(id, sourcePath string) *TranscriptJob {
	return &TranscriptJob{
		ID:         id,
		SourcePath: sourcePath,
		Stage:      StageCreated,
		CreatedAt:  time.Now(),
	}
}

func (j *TranscriptJob) Status() JobStatus {
	return j.Stage.Status()
}

// Advance moves the job to next, which must directly follow the current stage.
func (j *TranscriptJob) Advance(next Stage) error {
	if want, ok := stageNext[j.Stage]; !ok || want != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Stage, next)
	}
	j.Stage = next
	return nil
}

// Fail moves the job to the absorbing failed stage. Only the first error is kept.
func (j *TranscriptJob) Fail(err error) {
	if j.Stage.IsTerminal() {
		return
	}
	j.Stage = StageFailed
	j.Err = err
}

// SetSegments builds descriptors for segment files already ordered by index.
// audioPath derives the audio destination for each segment.
func (j *TranscriptJob) SetSegments(paths []string, audioPath func(index int) string) {
	j.Segments = make([]SegmentDescriptor, len(paths))
	for i, p := range paths {
		j.Segments[i] = SegmentDescriptor{
			Index:      i,
			SourcePath: p,
			AudioPath:  audioPath(i),
			Status:     SegmentStatusPending,
		}
	}
}
