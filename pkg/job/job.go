package job

import "sync"

// recentLogCapacity bounds the ring buffer backing Job.RecentLog, per
// the supplemented feature in SPEC_FULL.md §9 (grounded on the
// original slave.c log ring, which kept only the tail of a job's log
// for status reporting rather than the full transcript).
const recentLogCapacity = 50

// Job is one worker-side job instance: its current state, the
// cumulative counters reported by JOB_STATUS, and a bounded tail of
// its most recent log messages.
type Job struct {
	mu sync.Mutex

	UUID         string
	ScheduleUUID string
	Name         string
	Master       string

	state     State
	ErrorCode uint64
	ErrorData string

	DoneCount, DoneSize           uint64
	TotalEntryCount, TotalEntrySize uint64
	SkippedEntryCount, SkippedEntrySize uint64
	ErrorEntryCount, ErrorEntrySize     uint64
	ArchiveSize      uint64
	CompressionRatio float64

	EntryName                    string
	EntryDoneSize, EntryTotalSize uint64
	StorageName                  string
	StorageDoneSize, StorageTotalSize uint64
	VolumeNumber   uint64
	VolumeProgress float64

	log      []string
	logStart int
}

// New returns a job record in state None, ready for JOB_NEW.
func New(uuid string) *Job {
	return &Job{UUID: uuid, state: None}
}

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Transition moves the job to 'to', rejecting illegal moves per the
// table in state.go.
func (j *Job) Transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !CanTransition(j.state, to) {
		return &ErrInvalidTransition{From: j.state, To: to}
	}
	j.state = to
	return nil
}

// ReportedState is the externally-visible state: dry-run executions
// are reported as Running regardless of their internal sub-state (spec
// §4.8 "dry-run is reported as Running externally").
func (j *Job) ReportedState(dryRun bool) State {
	j.mu.Lock()
	defer j.mu.Unlock()
	if dryRun && !j.state.IsTerminal() {
		return Running
	}
	return j.state
}

// AppendLog records msg in the bounded recent-log ring, evicting the
// oldest entry once recentLogCapacity is reached.
func (j *Job) AppendLog(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.log) < recentLogCapacity {
		j.log = append(j.log, msg)
		return
	}
	j.log[j.logStart] = msg
	j.logStart = (j.logStart + 1) % recentLogCapacity
}

// RecentLog returns the held log lines in chronological order.
func (j *Job) RecentLog() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.log) < recentLogCapacity {
		out := make([]string, len(j.log))
		copy(out, j.log)
		return out
	}
	out := make([]string, recentLogCapacity)
	copy(out, j.log[j.logStart:])
	copy(out[recentLogCapacity-j.logStart:], j.log[:j.logStart])
	return out
}

// LastMessage returns the most recently appended log line, or "" if
// none has been recorded yet.
func (j *Job) LastMessage() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.log) == 0 {
		return ""
	}
	if len(j.log) < recentLogCapacity {
		return j.log[len(j.log)-1]
	}
	idx := (j.logStart - 1 + recentLogCapacity) % recentLogCapacity
	return j.log[idx]
}

// Reset reinitializes the job record for reuse after JOB_DELETE+JOB_NEW
// (spec §4.8: "the job record may be reused"). It does not replace the
// struct in place, since that would overwrite the mutex guarding it
// while held.
func (j *Job) Reset(scheduleUUID, name, master string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ScheduleUUID = scheduleUUID
	j.Name = name
	j.Master = master
	j.state = None
	j.ErrorCode = 0
	j.ErrorData = ""
	j.DoneCount, j.DoneSize = 0, 0
	j.TotalEntryCount, j.TotalEntrySize = 0, 0
	j.SkippedEntryCount, j.SkippedEntrySize = 0, 0
	j.ErrorEntryCount, j.ErrorEntrySize = 0, 0
	j.ArchiveSize = 0
	j.CompressionRatio = 0
	j.EntryName = ""
	j.EntryDoneSize, j.EntryTotalSize = 0, 0
	j.StorageName = ""
	j.StorageDoneSize, j.StorageTotalSize = 0, 0
	j.VolumeNumber = 0
	j.VolumeProgress = 0
	j.log = nil
	j.logStart = 0
}
