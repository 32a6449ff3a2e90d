package ingest

import "sort"

// Stage names the six pipeline phases an IngestEvent can be attributed to.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageDecode   Stage = "decode"
	StageExtract  Stage = "extract"
	StageNormalize Stage = "normalize"
	StagePersist  Stage = "persist"
	StageFinalize Stage = "finalize"
)

// Event is one structured log line emitted during ingest: a stage, a
// dotted code, and a bag of fields. Events are part of the returned
// result but never part of an on-disk artifact, mirroring the ambient
// telemetry.Event shape used by the rest of the codebase without coupling
// ingest to a live logger.
type Event struct {
	Stage  Stage          `json:"stage"`
	Code   string         `json:"code"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Log accumulates Events in emission order. Run emits from a single
// goroutine whatever MaxThreads is set to, so the order is the pipeline's
// stage order.
type Log struct {
	events []Event
}

func (l *Log) Emit(stage Stage, code string, fields map[string]any) {
	l.events = append(l.events, Event{Stage: stage, Code: code, Fields: fields})
}

func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// SortedEvents returns a deterministic ordering independent of emission
// order, used when a caller wants to diff two runs' event streams.
func (l *Log) SortedEvents() []Event {
	out := l.Events()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Code < out[j].Code
	})
	return out
}
