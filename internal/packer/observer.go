package packer

import (
	"time"

	"respack/internal/vpath"
)

// State is where a directory is in its packing pass.
type State int

const (
	StateIdle State = iota
	StateScanningFlags
	StateDetectingChange
	StateUnchanged
	StateRepacking
	StateRecursingChildren
	StateDone
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateScanningFlags:     "scanning_flags",
	StateDetectingChange:   "detecting_change",
	StateUnchanged:         "unchanged",
	StateRepacking:         "repacking",
	StateRecursingChildren: "recursing_children",
	StateDone:              "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Status is the outcome of one directory.
type Status string

const (
	StatusRepacked  Status = "repacked"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// DirResult reports one directory of a walk.
type DirResult struct {
	Input       string        `json:"input"`
	Output      string        `json:"output"`
	Status      Status        `json:"status"`
	Definitions int           `json:"definitions"`
	Flags       string        `json:"flags,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Report summarizes one PackResources call.
type Report struct {
	Input      string      `json:"input"`
	Output     string      `json:"output"`
	FullRepack bool        `json:"full_repack"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Dirs       []DirResult `json:"dirs"`
	Canceled   bool        `json:"canceled,omitempty"`
}

// Repacked counts the directories that were rebuilt.
func (r *Report) Repacked() int {
	n := 0
	for _, d := range r.Dirs {
		if d.Status == StatusRepacked {
			n++
		}
	}
	return n
}

// Observer receives progress from the packer. The packer itself prints
// nothing; console output belongs to Observer implementations.
type Observer interface {
	// OnStart is called once the top-level guard has been evaluated.
	OnStart(input, output vpath.Path, fullRepack bool)
	// OnState is called on every directory state transition.
	OnState(dir vpath.Path, state State)
	// OnDirDone is called after a directory is packed or skipped, before its children.
	OnDirDone(res DirResult)
	// OnFinish is called with the final report.
	OnFinish(report *Report)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(vpath.Path, vpath.Path, bool) {}
func (NopObserver) OnState(vpath.Path, State)            {}
func (NopObserver) OnDirDone(DirResult)                  {}
func (NopObserver) OnFinish(*Report)                     {}
