// Package trace provides a JSONL event stream for recording scheduling
// decisions: clock advances, task placements, rollout evaluations, and
// solver progress. Every run is auditable and replayable from its trace.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of trace event.
const (
	KindRunStart        = "run_start"
	KindRunDone         = "run_done"
	KindClockAdvance    = "clock_advance"
	KindTaskPlaced      = "task_placed"
	KindTaskSkipped     = "task_skipped"
	KindRolloutDecision = "rollout_decision"
	KindTargetSelected  = "target_selected"
	KindSolverStatus    = "solver_status"
	KindWarning         = "warning"
)

// Event is a single trace record: a timestamp, a kind tag, optional run and
// task identifiers, and arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run,omitempty"`
	TaskID    string    `json:"task,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes trace events to a JSONL file. It is safe for concurrent
// use. A nil *Emitter is a valid no-op emitter, so engines can thread one
// through unconditionally.
type Emitter struct {
	file  *os.File
	enc   *json.Encoder
	runID string
	mu    sync.Mutex
}

// NewEmitter creates an Emitter appending JSONL events to the file at path.
func NewEmitter(path, runID string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	return &Emitter{file: f, enc: json.NewEncoder(f), runID: runID}, nil
}

// Emit writes one event. No-op on a nil emitter.
func (e *Emitter) Emit(kind, taskID string, data any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(Event{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		RunID:     e.runID,
		TaskID:    taskID,
		Data:      data,
	})
}

// Close flushes and closes the underlying file. No-op on a nil emitter.
func (e *Emitter) Close() error {
	if e == nil || e.file == nil {
		return nil
	}
	return e.file.Close()
}
