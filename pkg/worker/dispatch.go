package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/vaultline/pkg/job"
	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/metrics"
	"github.com/cuemby/vaultline/pkg/protoerr"
	"github.com/cuemby/vaultline/pkg/security"
	"github.com/cuemby/vaultline/pkg/session"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// HandlerResult is the single typed outcome a CommandHandler returns.
// The Dispatcher converts it into exactly one SendResult call (spec §9
// "Dynamic dispatch": handlers return a typed result the framework
// converts into the wire result, rather than each handler emitting the
// result inline).
type HandlerResult struct {
	Completed bool
	ErrorCode protoerr.Kind
	Args      []wireline.Arg
}

// ok builds a successful, completed result.
func ok(args ...wireline.Arg) HandlerResult {
	return HandlerResult{Completed: true, ErrorCode: protoerr.None, Args: args}
}

// fail builds a completed-but-erroring result; payload carries a single
// human-readable message argument.
func fail(kind protoerr.Kind, format string, a ...any) HandlerResult {
	return HandlerResult{
		Completed: true,
		ErrorCode: kind,
		Args:      []wireline.Arg{wireline.QuotedArg("message", fmt.Sprintf(format, a...))},
	}
}

// missingArg builds the ExpectedParameter result naming the missing key
// and its expected shape (spec §4.7 "Argument validation").
func missingArg(shape string) HandlerResult {
	return HandlerResult{
		Completed: true,
		ErrorCode: protoerr.ExpectedParameter,
		Args:      []wireline.Arg{wireline.QuotedArg("message", shape)},
	}
}

// CommandHandler executes one parsed command against a Dispatcher's
// collaborators and returns exactly one HandlerResult.
type CommandHandler func(d *Dispatcher, cmd wireline.Command) HandlerResult

// Sender is the subset of *serverio.ServerIO the Dispatcher depends on,
// kept narrow so tests can fake it without a real connection. Beyond
// servicing inbound commands, a worker also originates commands of its
// own on the same connection as it archives (spec §6 direction W→M:
// STORAGE_*, INDEX_*, PREPROCESS, POSTPROCESS are worker-sent,
// master-received), which is why Sender carries SendCommand/
// ExecuteCommand alongside GetCommand/SendResult.
type Sender interface {
	GetCommand(ctx context.Context) (wireline.Command, bool)
	SendResult(id uint64, completed bool, errorCode uint64, args ...wireline.Arg) error
	SendCommand(name string, args ...wireline.Arg) (uint64, error)
	ExecuteCommand(timeout time.Duration, name string, args ...wireline.Arg) (wireline.Result, error)
}

// Dispatcher owns the worker-side command loop: it pulls master-issued
// commands off a ServerIO and executes the matching handler, while also
// originating the archive-byte and index-mutation commands a running
// job produces back to the master over the same connection.
type Dispatcher struct {
	io      Sender
	session *session.Session

	storedHash []byte
	authorized bool

	mu   sync.Mutex
	jobs map[string]*job.Job
}

// NewDispatcher builds a Dispatcher over io. sess is the session
// established on this connection (needed to decode AUTHORIZE's
// encrypted credential); storedHash is the SHA-256 hash this worker
// expects the decoded credential to match (spec §4.4 "Verification").
func NewDispatcher(io Sender, sess *session.Session, storedHash []byte) *Dispatcher {
	return &Dispatcher{
		io:         io,
		session:    sess,
		storedHash: storedHash,
		jobs:       make(map[string]*job.Job),
	}
}

// Run drives the dispatch loop until ctx is done or the ServerIO closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		cmd, ok := d.io.GetCommand(ctx)
		if !ok {
			return
		}
		handler, known := commandTable[cmd.Name]
		var res HandlerResult
		timer := metrics.NewTimer()
		switch {
		case !known:
			res = fail(protoerr.Parse, "unknown command '%s'", cmd.Name)
		case cmd.Name != "AUTHORIZE" && !d.authorized:
			res = fail(protoerr.InvalidSshPassword, "connection is not authorized")
		default:
			res = handler(d, cmd)
		}
		timer.ObserveDurationVec(metrics.CommandDispatchDuration, cmd.Name)
		metrics.CommandsDispatchedTotal.WithLabelValues(cmd.Name, strconv.FormatBool(res.Completed)).Inc()
		if jobMutatingCommands[cmd.Name] {
			d.recomputeJobStateMetrics()
		}
		if err := d.io.SendResult(cmd.ID, res.Completed, uint64(res.ErrorCode), res.Args...); err != nil {
			log.Logger.Error().Err(err).Uint64("cmdID", cmd.ID).Str("cmd", cmd.Name).Msg("worker: sending result failed")
			return
		}
	}
}

func (d *Dispatcher) job(uuid string) (*job.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[uuid]
	return j, ok
}

// jobMutatingCommands names every command after which the JobsByState
// gauge snapshot may have changed.
var jobMutatingCommands = map[string]bool{
	"JOB_NEW":    true,
	"JOB_DELETE": true,
	"JOB_START":  true,
	"JOB_ABORT":  true,
}

// recomputeJobStateMetrics resets and re-derives the JobsByState gauge
// from the current job set, rather than incrementing/decrementing
// per-transition counters that would drift under concurrent access.
func (d *Dispatcher) recomputeJobStateMetrics() {
	d.mu.Lock()
	counts := make(map[job.State]int, len(d.jobs))
	for _, j := range d.jobs {
		counts[j.State()]++
	}
	d.mu.Unlock()

	metrics.JobsByState.Reset()
	for state, count := range counts {
		metrics.JobsByState.WithLabelValues(state.String()).Set(float64(count))
	}
}

// commandTable is the fixed mapping from uppercase command name to
// handler (spec §4.7 "Command table").
var commandTable = map[string]CommandHandler{
	"AUTHORIZE":                    handleAuthorize,
	"JOB_NEW":                      handleJobNew,
	"JOB_OPTION_SET":               handleJobOptionSet,
	"JOB_DELETE":                   handleJobDelete,
	"JOB_START":                    handleJobStart,
	"JOB_ABORT":                    handleJobAbort,
	"JOB_STATUS":                   handleJobStatus,
	"INCLUDE_LIST_CLEAR":           handleListClear,
	"INCLUDE_LIST_ADD":             handleListAddNoop,
	"EXCLUDE_LIST_CLEAR":           handleListClear,
	"EXCLUDE_LIST_ADD":             handleListAddNoop,
	"MOUNT_LIST_CLEAR":             handleListClear,
	"MOUNT_LIST_ADD":               handleListAddNoop,
	"EXCLUDE_COMPRESS_LIST_CLEAR":  handleListClear,
	"EXCLUDE_COMPRESS_LIST_ADD":    handleListAddNoop,
	"SOURCE_LIST_CLEAR":            handleListClear,
	"SOURCE_LIST_ADD":              handleListAddNoop,
}

// --- JOB_* ---

// handleAuthorize implements spec §4.4/§4.6: decode the encrypted
// credential under the connection's session, hash it, and compare
// against this worker's configured hash. A connection that never
// authorizes is rejected before reaching any job-mutating command.
func handleAuthorize(d *Dispatcher, cmd wireline.Command) HandlerResult {
	encryptTypeStr, err := cmd.Args.GetString("encryptType")
	if err != nil {
		return missingArg("encryptType=<string>")
	}
	encryptedUUID, err := cmd.Args.GetString("encryptedUUID")
	if err != nil {
		return missingArg("encryptedUUID=<hex>")
	}
	encryptType, err := session.ParseEncryptType(encryptTypeStr)
	if err != nil {
		return fail(protoerr.Parse, "%v", err)
	}

	decoded, err := security.DecodePassword(d.session, encryptType, encryptedUUID)
	if err != nil {
		return fail(protoerr.InvalidSshPassword, "%v", err)
	}
	defer decoded.Zero()

	if !security.VerifyPassword(decoded, d.storedHash) {
		return fail(protoerr.InvalidSshPassword, "credential does not match")
	}

	d.mu.Lock()
	d.authorized = true
	d.mu.Unlock()
	return ok()
}

func handleJobNew(d *Dispatcher, cmd wireline.Command) HandlerResult {
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return missingArg("name=<string>")
	}
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return missingArg("jobUUID=<string>")
	}
	scheduleUUID, err := cmd.Args.GetString("scheduleUUID")
	if err != nil {
		return missingArg("scheduleUUID=<string>")
	}
	master, err := cmd.Args.GetString("master")
	if err != nil {
		return missingArg("master=<string>")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	j, exists := d.jobs[jobUUID]
	if exists {
		j.Reset(scheduleUUID, name, master)
	} else {
		j = job.New(jobUUID)
		j.ScheduleUUID = scheduleUUID
		j.Name = name
		j.Master = master
		d.jobs[jobUUID] = j
	}
	if err := j.Transition(job.Waiting); err != nil {
		return fail(protoerr.InvalidResponse, "%v", err)
	}
	return ok()
}

func handleJobOptionSet(d *Dispatcher, cmd wireline.Command) HandlerResult {
	if _, err := cmd.Args.GetString("jobUUID"); err != nil {
		return missingArg("jobUUID=<string>")
	}
	if _, err := cmd.Args.GetString("name"); err != nil {
		return missingArg("name=<string>")
	}
	if _, err := cmd.Args.GetString("value"); err != nil {
		return missingArg("value=<string>")
	}
	// Option storage belongs to the job configuration layer; the
	// dispatcher only validates shape here and acknowledges receipt.
	return ok()
}

func handleJobDelete(d *Dispatcher, cmd wireline.Command) HandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return missingArg("jobUUID=<string>")
	}
	d.mu.Lock()
	delete(d.jobs, jobUUID)
	d.mu.Unlock()
	return ok()
}

func handleJobStart(d *Dispatcher, cmd wireline.Command) HandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return missingArg("jobUUID=<string>")
	}
	scheduleUUID, err := cmd.Args.GetString("scheduleUUID")
	if err != nil {
		return missingArg("scheduleUUID=<string>")
	}
	archiveTypeStr, err := cmd.Args.GetString("archiveType")
	if err != nil {
		return missingArg("archiveType=<NORMAL|FULL|INCREMENTAL|DIFFERENTIAL|CONTINUOUS>")
	}
	j, exists := d.job(jobUUID)
	if !exists {
		return fail(protoerr.InvalidData, "unknown jobUUID '%s'", jobUUID)
	}
	if err := j.Transition(job.Running); err != nil {
		return fail(protoerr.InvalidResponse, "%v", err)
	}
	go d.runArchive(j, scheduleUUID, archiveTypeStr)
	return ok()
}

func handleJobAbort(d *Dispatcher, cmd wireline.Command) HandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return missingArg("jobUUID=<string>")
	}
	j, exists := d.job(jobUUID)
	if !exists {
		return fail(protoerr.InvalidData, "unknown jobUUID '%s'", jobUUID)
	}
	if err := j.Transition(job.Aborted); err != nil {
		return fail(protoerr.InvalidResponse, "%v", err)
	}
	return ok()
}

func handleJobStatus(d *Dispatcher, cmd wireline.Command) HandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return missingArg("jobUUID=<string>")
	}
	j, exists := d.job(jobUUID)
	if !exists {
		return fail(protoerr.InvalidData, "unknown jobUUID '%s'", jobUUID)
	}
	return ok(
		wireline.CStringArg("state", j.State().String()),
		wireline.Uint64Arg("errorCode", j.ErrorCode),
		wireline.QuotedArg("errorData", j.ErrorData),
		wireline.Uint64Arg("doneCount", j.DoneCount),
		wireline.Uint64Arg("doneSize", j.DoneSize),
		wireline.Uint64Arg("totalEntryCount", j.TotalEntryCount),
		wireline.Uint64Arg("totalEntrySize", j.TotalEntrySize),
		wireline.Uint64Arg("skippedEntryCount", j.SkippedEntryCount),
		wireline.Uint64Arg("skippedEntrySize", j.SkippedEntrySize),
		wireline.Uint64Arg("errorEntryCount", j.ErrorEntryCount),
		wireline.Uint64Arg("errorEntrySize", j.ErrorEntrySize),
		wireline.Uint64Arg("archiveSize", j.ArchiveSize),
		wireline.FloatArg("compressionRatio", j.CompressionRatio),
		wireline.QuotedArg("entryName", j.EntryName),
		wireline.Uint64Arg("entryDoneSize", j.EntryDoneSize),
		wireline.Uint64Arg("entryTotalSize", j.EntryTotalSize),
		wireline.QuotedArg("storageName", j.StorageName),
		wireline.Uint64Arg("storageDoneSize", j.StorageDoneSize),
		wireline.Uint64Arg("storageTotalSize", j.StorageTotalSize),
		wireline.Uint64Arg("volumeNumber", j.VolumeNumber),
		wireline.FloatArg("volumeProgress", j.VolumeProgress),
		wireline.QuotedArg("message", j.LastMessage()),
	)
}

// --- list mutation commands (share one shape: jobUUID + pattern fields) ---

func handleListClear(d *Dispatcher, cmd wireline.Command) HandlerResult {
	if _, err := cmd.Args.GetString("jobUUID"); err != nil {
		return missingArg("jobUUID=<string>")
	}
	return ok()
}

func handleListAddNoop(d *Dispatcher, cmd wireline.Command) HandlerResult {
	if _, err := cmd.Args.GetString("jobUUID"); err != nil {
		return missingArg("jobUUID=<string>")
	}
	if _, err := cmd.Args.GetString("pattern"); err != nil {
		return missingArg("pattern=<string>")
	}
	return ok()
}
