package connector

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/vaultline/pkg/index"
	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/metrics"
	"github.com/cuemby/vaultline/pkg/protoerr"
	"github.com/cuemby/vaultline/pkg/storagebackend"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// archiveHandlerResult is the master-side twin of the worker dispatcher's
// HandlerResult (pkg/worker/dispatch.go): one typed outcome the archive
// dispatch loop converts into exactly one SendResult call.
type archiveHandlerResult struct {
	Completed bool
	ErrorCode protoerr.Kind
	Args      []wireline.Arg
}

func archiveOK(args ...wireline.Arg) archiveHandlerResult {
	return archiveHandlerResult{Completed: true, ErrorCode: protoerr.None, Args: args}
}

func archiveFail(kind protoerr.Kind, format string, a ...any) archiveHandlerResult {
	return archiveHandlerResult{
		Completed: true,
		ErrorCode: kind,
		Args:      []wireline.Arg{wireline.QuotedArg("message", fmt.Sprintf(format, a...))},
	}
}

func archiveMissingArg(shape string) archiveHandlerResult {
	return archiveHandlerResult{
		Completed: true,
		ErrorCode: protoerr.ExpectedParameter,
		Args:      []wireline.Arg{wireline.QuotedArg("message", shape)},
	}
}

// archiveHandler executes one parsed command against an ArchiveDispatcher's
// collaborators and returns exactly one archiveHandlerResult.
type archiveHandler func(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult

// Receiver is the subset of *serverio.ServerIO an ArchiveDispatcher needs
// to service the commands a worker originates as it archives (spec §6
// direction W→M: STORAGE_*, INDEX_*, PREPROCESS, POSTPROCESS). It is the
// mirror image of pkg/worker.Sender's GetCommand/SendResult half, kept
// narrow so tests can fake it without a real connection.
type Receiver interface {
	GetCommand(ctx context.Context) (wireline.Command, bool)
	SendResult(id uint64, completed bool, errorCode uint64, args ...wireline.Arg) error
}

// ArchiveDispatcher is the master-side counterpart to pkg/worker.Dispatcher:
// where that type services commands the master sends, this type services
// the archive-byte and index-mutation commands the worker sends back over
// the same connection while a job runs. It is single-writer against its
// StorageBackend and IndexHandle for the lifetime of one connection (spec
// §5 "Shared-resource policy"): one archive stream is open at a time.
type ArchiveDispatcher struct {
	io      Receiver
	backend storagebackend.StorageBackend
	index   index.IndexHandle

	mu       sync.Mutex
	sinkName string
	sink     io.WriteCloser
	sinkAt   io.WriterAt
	sinkSeq  int64
}

// NewArchiveDispatcher builds an ArchiveDispatcher over io, servicing
// storage writes against backend and index mutations against idx.
func NewArchiveDispatcher(io Receiver, backend storagebackend.StorageBackend, idx index.IndexHandle) *ArchiveDispatcher {
	return &ArchiveDispatcher{io: io, backend: backend, index: idx}
}

// ServeArchive builds an ArchiveDispatcher over c's connection and runs it
// until ctx is done or the connection closes. Callers run this
// concurrently with Start/WatchUntilTerminal: a worker may originate
// STORAGE_*/INDEX_*/PREPROCESS/POSTPROCESS commands at any point after
// JOB_START while its own JOB_STATUS is being polled on the same
// connection.
func (c *Connector) ServeArchive(ctx context.Context, backend storagebackend.StorageBackend, idx index.IndexHandle) {
	NewArchiveDispatcher(c.io, backend, idx).Run(ctx)
}

// Run drives the archive dispatch loop until ctx is done or the
// underlying connection closes.
func (d *ArchiveDispatcher) Run(ctx context.Context) {
	for {
		cmd, ok := d.io.GetCommand(ctx)
		if !ok {
			return
		}
		handler, known := archiveCommandTable[cmd.Name]
		var res archiveHandlerResult
		timer := metrics.NewTimer()
		if !known {
			res = archiveFail(protoerr.Parse, "unknown command '%s'", cmd.Name)
		} else {
			res = handler(d, cmd)
		}
		timer.ObserveDurationVec(metrics.CommandDispatchDuration, cmd.Name)
		metrics.CommandsDispatchedTotal.WithLabelValues(cmd.Name, strconv.FormatBool(res.Completed)).Inc()
		if err := d.io.SendResult(cmd.ID, res.Completed, uint64(res.ErrorCode), res.Args...); err != nil {
			log.Logger.Error().Err(err).Uint64("cmdID", cmd.ID).Str("cmd", cmd.Name).Msg("connector: sending result failed")
			return
		}
	}
}

// archiveCommandTable is the fixed mapping from uppercase command name to
// handler for the commands a worker originates while archiving (spec §6
// direction W→M).
var archiveCommandTable = map[string]archiveHandler{
	"STORAGE_CREATE":             handleStorageCreate,
	"STORAGE_WRITE":              handleStorageWrite,
	"STORAGE_CLOSE":              handleStorageClose,
	"PREPROCESS":                 handlePreProcess,
	"POSTPROCESS":                handlePostProcess,
	"INDEX_FIND_UUID":            handleIndexFindUUID,
	"INDEX_NEW_UUID":             handleIndexNewUUID,
	"INDEX_NEW_ENTITY":           handleIndexNewEntity,
	"INDEX_NEW_STORAGE":          handleIndexNewStorage,
	"INDEX_ADD_FILE":             handleIndexAddFile,
	"INDEX_ADD_IMAGE":            handleIndexAddImage,
	"INDEX_ADD_DIRECTORY":        handleIndexAddDirectory,
	"INDEX_ADD_LINK":             handleIndexAddLink,
	"INDEX_ADD_HARDLINK":         handleIndexAddHardlink,
	"INDEX_ADD_SPECIAL":          handleIndexAddSpecial,
	"INDEX_SET_STATE":            handleIndexSetState,
	"INDEX_STORAGE_UPDATE":       handleIndexStorageUpdate,
	"INDEX_UPDATE_STORAGE_INFOS": handleIndexUpdateStorageInfos,
	"INDEX_NEW_HISTORY":          handleIndexNewHistory,
}

// --- STORAGE_* ---

func handleStorageCreate(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	archiveName, err := cmd.Args.GetString("archiveName")
	if err != nil {
		return archiveMissingArg("archiveName=<string>")
	}
	if _, err := cmd.Args.GetUint64("archiveSize"); err != nil {
		return archiveMissingArg("archiveSize=<n>")
	}

	w, err := d.backend.Open(context.Background(), archiveName)
	if err != nil {
		return archiveFail(protoerr.InvalidStorage, "opening %s: %v", archiveName, err)
	}

	d.mu.Lock()
	if d.sink != nil {
		d.mu.Unlock()
		w.Close()
		return archiveFail(protoerr.InvalidData, "storage %q already open on this connection", d.sinkName)
	}
	d.sink = w
	d.sinkName = archiveName
	d.sinkAt, _ = w.(io.WriterAt)
	d.sinkSeq = 0
	d.mu.Unlock()
	return archiveOK()
}

func handleStorageWrite(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	offset, err := cmd.Args.GetUint64("offset")
	if err != nil {
		return archiveMissingArg("offset=<n>")
	}
	length, err := cmd.Args.GetUint64("length")
	if err != nil {
		return archiveMissingArg("length=<n>")
	}
	encoded, err := cmd.Args.GetString("data")
	if err != nil {
		return archiveMissingArg("data=<base64>")
	}
	chunk, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return archiveFail(protoerr.Parse, "decoding data: %v", err)
	}
	if uint64(len(chunk)) != length {
		return archiveFail(protoerr.InvalidData, "declared length %d does not match decoded length %d", length, len(chunk))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink == nil {
		return archiveFail(protoerr.InvalidData, "no storage open on this connection")
	}

	if d.sinkAt != nil {
		if _, err := d.sinkAt.WriteAt(chunk, int64(offset)); err != nil {
			return archiveFail(protoerr.InvalidStorage, "writing %s at %d: %v", d.sinkName, offset, err)
		}
	} else {
		if int64(offset) != d.sinkSeq {
			return archiveFail(protoerr.InvalidData, "backend %q only accepts sequential writes: expected offset %d, got %d", d.sinkName, d.sinkSeq, offset)
		}
		if _, err := d.sink.Write(chunk); err != nil {
			return archiveFail(protoerr.InvalidStorage, "writing %s: %v", d.sinkName, err)
		}
		d.sinkSeq += int64(len(chunk))
	}
	metrics.StorageBytesWrittenTotal.Add(float64(len(chunk)))
	return archiveOK()
}

func handleStorageClose(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	d.mu.Lock()
	sink := d.sink
	name := d.sinkName
	d.sink = nil
	d.sinkAt = nil
	d.sinkName = ""
	d.sinkSeq = 0
	d.mu.Unlock()

	if sink == nil {
		return archiveFail(protoerr.InvalidData, "no storage open on this connection")
	}
	if err := sink.Close(); err != nil {
		return archiveFail(protoerr.InvalidStorage, "closing %s: %v", name, err)
	}
	return archiveOK()
}

// --- PREPROCESS/POSTPROCESS ---
//
// Both are acknowledgment-only: the original bar client's connector
// handlers for these two commands do nothing beyond sending a success
// result, and that behavior carries over unchanged.

func handlePreProcess(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	if _, err := cmd.Args.GetString("archiveName"); err != nil {
		return archiveMissingArg("archiveName=<string>")
	}
	if _, err := cmd.Args.GetUint64("time"); err != nil {
		return archiveMissingArg("time=<n>")
	}
	if _, err := cmd.Args.GetBool("initialFlag"); err != nil {
		return archiveMissingArg("initialFlag=<yes|no>")
	}
	return archiveOK()
}

func handlePostProcess(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	if _, err := cmd.Args.GetString("archiveName"); err != nil {
		return archiveMissingArg("archiveName=<string>")
	}
	if _, err := cmd.Args.GetUint64("time"); err != nil {
		return archiveMissingArg("time=<n>")
	}
	if _, err := cmd.Args.GetBool("finalFlag"); err != nil {
		return archiveMissingArg("finalFlag=<yes|no>")
	}
	return archiveOK()
}

// --- INDEX_* ---

func handleIndexFindUUID(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return archiveMissingArg("jobUUID=<string>")
	}
	scheduleUUID, err := cmd.Args.GetString("scheduleUUID")
	if err != nil {
		return archiveMissingArg("scheduleUUID=<string>")
	}
	info, err := d.index.FindUUID(jobUUID, scheduleUUID)
	if err != nil {
		return archiveFail(protoerr.InvalidData, "%v", err)
	}
	return archiveOK(wireline.CStringArg("uuidId", info.UUIDID))
}

func handleIndexNewUUID(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return archiveMissingArg("jobUUID=<string>")
	}
	id, err := d.index.NewUUID(jobUUID)
	if err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK(wireline.CStringArg("uuidId", id))
}

func handleIndexNewEntity(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return archiveMissingArg("jobUUID=<string>")
	}
	scheduleUUID, err := cmd.Args.GetString("scheduleUUID")
	if err != nil {
		return archiveMissingArg("scheduleUUID=<string>")
	}
	archiveTypeStr, err := cmd.Args.GetString("archiveType")
	if err != nil {
		return archiveMissingArg("archiveType=<NORMAL|FULL|INCREMENTAL|DIFFERENTIAL|CONTINUOUS>")
	}
	archiveType, err := index.ParseArchiveType(archiveTypeStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	locked, err := cmd.Args.GetBool("locked")
	if err != nil {
		return archiveMissingArg("locked=<yes|no>")
	}
	id, err := d.index.NewEntity(jobUUID, scheduleUUID, archiveType, time.Now(), locked)
	if err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK(wireline.CStringArg("entityId", id))
}

func handleIndexNewStorage(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	entityID, err := cmd.Args.GetString("entityId")
	if err != nil {
		return archiveMissingArg("entityId=<string>")
	}
	storageName, err := cmd.Args.GetString("storageName")
	if err != nil {
		return archiveMissingArg("storageName=<string>")
	}
	size, err := cmd.Args.GetUint64("size")
	if err != nil {
		return archiveMissingArg("size=<n>")
	}
	stateStr, err := cmd.Args.GetString("indexState")
	if err != nil {
		return archiveMissingArg("indexState=<string>")
	}
	state, err := index.ParseIndexState(stateStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	modeStr, err := cmd.Args.GetString("indexMode")
	if err != nil {
		return archiveMissingArg("indexMode=<string>")
	}
	mode, err := index.ParseIndexMode(modeStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	id, err := d.index.NewStorage(entityID, storageName, time.Now(), size, state, mode)
	if err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK(wireline.CStringArg("storageId", id))
}

// entryTimes reads the three optional POSIX-timestamp arguments common to
// the INDEX_ADD_* commands, defaulting any that are absent to the zero
// time rather than rejecting the command.
func entryTimes(cmd wireline.Command) index.EntryTimes {
	unix := func(key string) time.Time {
		n, err := cmd.Args.GetUint64(key)
		if err != nil || n == 0 {
			return time.Time{}
		}
		return time.Unix(int64(n), 0)
	}
	return index.EntryTimes{
		LastAccess:  unix("timeLastAccess"),
		Modified:    unix("timeModified"),
		LastChanged: unix("timeLastChanged"),
	}
}

func handleIndexAddFile(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	size, err := cmd.Args.GetUint64("size")
	if err != nil {
		return archiveMissingArg("size=<n>")
	}
	userID, err := cmd.Args.GetUint64("userId")
	if err != nil {
		return archiveMissingArg("userId=<n>")
	}
	groupID, err := cmd.Args.GetUint64("groupId")
	if err != nil {
		return archiveMissingArg("groupId=<n>")
	}
	permission, err := cmd.Args.GetUint64("permission")
	if err != nil {
		return archiveMissingArg("permission=<n>")
	}
	fragmentOffset, err := cmd.Args.GetUint64("fragmentOffset")
	if err != nil {
		return archiveMissingArg("fragmentOffset=<n>")
	}
	fragmentSize, err := cmd.Args.GetUint64("fragmentSize")
	if err != nil {
		return archiveMissingArg("fragmentSize=<n>")
	}
	if err := d.index.AddFile(storageID, name, size, entryTimes(cmd), userID, groupID, permission, fragmentOffset, fragmentSize); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexAddImage(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	fileSystemType, err := cmd.Args.GetString("fileSystemType")
	if err != nil {
		return archiveMissingArg("fileSystemType=<string>")
	}
	size, err := cmd.Args.GetUint64("size")
	if err != nil {
		return archiveMissingArg("size=<n>")
	}
	blockSize, err := cmd.Args.GetUint64("blockSize")
	if err != nil {
		return archiveMissingArg("blockSize=<n>")
	}
	blockOffset, err := cmd.Args.GetUint64("blockOffset")
	if err != nil {
		return archiveMissingArg("blockOffset=<n>")
	}
	blockCount, err := cmd.Args.GetUint64("blockCount")
	if err != nil {
		return archiveMissingArg("blockCount=<n>")
	}
	if err := d.index.AddImage(storageID, name, fileSystemType, size, blockSize, blockOffset, blockCount); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexAddDirectory(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	userID, err := cmd.Args.GetUint64("userId")
	if err != nil {
		return archiveMissingArg("userId=<n>")
	}
	groupID, err := cmd.Args.GetUint64("groupId")
	if err != nil {
		return archiveMissingArg("groupId=<n>")
	}
	permission, err := cmd.Args.GetUint64("permission")
	if err != nil {
		return archiveMissingArg("permission=<n>")
	}
	if err := d.index.AddDirectory(storageID, name, entryTimes(cmd), userID, groupID, permission); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexAddLink(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	destinationName, err := cmd.Args.GetString("destinationName")
	if err != nil {
		return archiveMissingArg("destinationName=<string>")
	}
	userID, err := cmd.Args.GetUint64("userId")
	if err != nil {
		return archiveMissingArg("userId=<n>")
	}
	groupID, err := cmd.Args.GetUint64("groupId")
	if err != nil {
		return archiveMissingArg("groupId=<n>")
	}
	permission, err := cmd.Args.GetUint64("permission")
	if err != nil {
		return archiveMissingArg("permission=<n>")
	}
	if err := d.index.AddLink(storageID, name, destinationName, entryTimes(cmd), userID, groupID, permission); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexAddHardlink(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	size, err := cmd.Args.GetUint64("size")
	if err != nil {
		return archiveMissingArg("size=<n>")
	}
	userID, err := cmd.Args.GetUint64("userId")
	if err != nil {
		return archiveMissingArg("userId=<n>")
	}
	groupID, err := cmd.Args.GetUint64("groupId")
	if err != nil {
		return archiveMissingArg("groupId=<n>")
	}
	permission, err := cmd.Args.GetUint64("permission")
	if err != nil {
		return archiveMissingArg("permission=<n>")
	}
	fragmentOffset, err := cmd.Args.GetUint64("fragmentOffset")
	if err != nil {
		return archiveMissingArg("fragmentOffset=<n>")
	}
	fragmentSize, err := cmd.Args.GetUint64("fragmentSize")
	if err != nil {
		return archiveMissingArg("fragmentSize=<n>")
	}
	if err := d.index.AddHardlink(storageID, name, size, entryTimes(cmd), userID, groupID, permission, fragmentOffset, fragmentSize); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexAddSpecial(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	name, err := cmd.Args.GetString("name")
	if err != nil {
		return archiveMissingArg("name=<string>")
	}
	specialTypeStr, err := cmd.Args.GetString("specialType")
	if err != nil {
		return archiveMissingArg("specialType=<string>")
	}
	specialType, err := index.ParseSpecialType(specialTypeStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	userID, err := cmd.Args.GetUint64("userId")
	if err != nil {
		return archiveMissingArg("userId=<n>")
	}
	groupID, err := cmd.Args.GetUint64("groupId")
	if err != nil {
		return archiveMissingArg("groupId=<n>")
	}
	permission, err := cmd.Args.GetUint64("permission")
	if err != nil {
		return archiveMissingArg("permission=<n>")
	}
	fragmentOffset, err := cmd.Args.GetUint64("fragmentOffset")
	if err != nil {
		return archiveMissingArg("fragmentOffset=<n>")
	}
	fragmentSize, err := cmd.Args.GetUint64("fragmentSize")
	if err != nil {
		return archiveMissingArg("fragmentSize=<n>")
	}
	if err := d.index.AddSpecial(storageID, name, specialType, entryTimes(cmd), userID, groupID, permission, fragmentOffset, fragmentSize); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexSetState(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	indexID, err := cmd.Args.GetString("indexId")
	if err != nil {
		return archiveMissingArg("indexId=<string>")
	}
	stateStr, err := cmd.Args.GetString("state")
	if err != nil {
		return archiveMissingArg("state=<string>")
	}
	state, err := index.ParseIndexState(stateStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	errorMessage := cmd.Args.GetOr("errorMessage", "")
	if err := d.index.SetState(indexID, state, time.Now(), errorMessage); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexStorageUpdate(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	storageName, err := cmd.Args.GetString("storageName")
	if err != nil {
		return archiveMissingArg("storageName=<string>")
	}
	storageSize, err := cmd.Args.GetUint64("storageSize")
	if err != nil {
		return archiveMissingArg("storageSize=<n>")
	}
	if err := d.index.StorageUpdate(storageID, storageName, storageSize); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexUpdateStorageInfos(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	storageID, err := cmd.Args.GetString("storageId")
	if err != nil {
		return archiveMissingArg("storageId=<string>")
	}
	if err := d.index.UpdateStorageInfos(storageID); err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK()
}

func handleIndexNewHistory(d *ArchiveDispatcher, cmd wireline.Command) archiveHandlerResult {
	jobUUID, err := cmd.Args.GetString("jobUUID")
	if err != nil {
		return archiveMissingArg("jobUUID=<string>")
	}
	scheduleUUID, err := cmd.Args.GetString("scheduleUUID")
	if err != nil {
		return archiveMissingArg("scheduleUUID=<string>")
	}
	hostName, err := cmd.Args.GetString("hostName")
	if err != nil {
		return archiveMissingArg("hostName=<string>")
	}
	archiveTypeStr, err := cmd.Args.GetString("archiveType")
	if err != nil {
		return archiveMissingArg("archiveType=<NORMAL|FULL|INCREMENTAL|DIFFERENTIAL|CONTINUOUS>")
	}
	archiveType, err := index.ParseArchiveType(archiveTypeStr)
	if err != nil {
		return archiveFail(protoerr.Parse, "%v", err)
	}
	errorMessage := cmd.Args.GetOr("errorMessage", "")
	durationStr := cmd.Args.GetOr("duration", "0")
	var durationSeconds float64
	fmt.Sscanf(durationStr, "%g", &durationSeconds)
	totalEntryCount, err := cmd.Args.GetUint64("totalEntryCount")
	if err != nil {
		return archiveMissingArg("totalEntryCount=<n>")
	}
	skippedEntryCount, err := cmd.Args.GetUint64("skippedEntryCount")
	if err != nil {
		return archiveMissingArg("skippedEntryCount=<n>")
	}
	errorEntryCount, err := cmd.Args.GetUint64("errorEntryCount")
	if err != nil {
		return archiveMissingArg("errorEntryCount=<n>")
	}
	totalEntrySize, err := cmd.Args.GetUint64("totalEntrySize")
	if err != nil {
		return archiveMissingArg("totalEntrySize=<n>")
	}
	skippedEntrySize, err := cmd.Args.GetUint64("skippedEntrySize")
	if err != nil {
		return archiveMissingArg("skippedEntrySize=<n>")
	}
	errorEntrySize, err := cmd.Args.GetUint64("errorEntrySize")
	if err != nil {
		return archiveMissingArg("errorEntrySize=<n>")
	}

	id, err := d.index.NewHistory(jobUUID, scheduleUUID, hostName, archiveType, time.Now(), errorMessage,
		time.Duration(durationSeconds*float64(time.Second)),
		totalEntryCount, skippedEntryCount, errorEntryCount,
		totalEntrySize, skippedEntrySize, errorEntrySize,
	)
	if err != nil {
		return archiveFail(protoerr.InvalidStorage, "%v", err)
	}
	return archiveOK(wireline.CStringArg("historyId", id))
}
