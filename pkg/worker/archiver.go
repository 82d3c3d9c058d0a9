package worker

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cuemby/vaultline/pkg/archive"
	"github.com/cuemby/vaultline/pkg/index"
	"github.com/cuemby/vaultline/pkg/job"
	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// archiveCommandTimeout bounds every command a running job originates
// back to the master, matching the connector's own executeCommand
// default (spec §5 "every executeCommand carries a timeout").
const archiveCommandTimeout = 60 * time.Second

// writeChunkSize bounds a single STORAGE_WRITE payload.
const writeChunkSize = 64 * 1024

// runArchive drives one job's archive pass, originating the
// index-mutation and archive-byte commands named in spec §6 (direction
// W→M) back across the same connection the master used for JOB_START.
// It ends by transitioning the job to its terminal state and recording
// the counters JOB_STATUS reports.
func (d *Dispatcher) runArchive(j *job.Job, scheduleUUID, archiveTypeStr string) {
	if err := d.archive(j, scheduleUUID, archiveTypeStr); err != nil {
		log.WithJobUUID(j.UUID).Error().Err(err).Msg("worker: archive run failed")
		j.ErrorData = err.Error()
		_ = j.Transition(job.Error)
		return
	}
	_ = j.Transition(job.Done)
}

func (d *Dispatcher) archive(j *job.Job, scheduleUUID, archiveTypeStr string) error {
	archiveType, err := index.ParseArchiveType(archiveTypeStr)
	if err != nil {
		return err
	}

	uuidID, err := d.findOrCreateUUID(j.UUID, scheduleUUID)
	if err != nil {
		return fmt.Errorf("resolving uuid: %w", err)
	}

	entityRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_NEW_ENTITY",
		wireline.CStringArg("jobUUID", j.UUID),
		wireline.CStringArg("scheduleUUID", scheduleUUID),
		wireline.CStringArg("archiveType", archiveType.String()),
		wireline.BoolArg("locked", false),
	)
	if err != nil || entityRes.ErrorCode != 0 {
		return resultErr(entityRes, err, "INDEX_NEW_ENTITY")
	}
	entityID, err := resultField(entityRes, "entityId")
	if err != nil {
		return err
	}

	archiveName := fmt.Sprintf("%s.bar", j.UUID)
	manifest, err := d.buildManifest(j, uuidID, entityID)
	if err != nil {
		return err
	}

	if _, err := d.io.ExecuteCommand(archiveCommandTimeout, "PREPROCESS",
		wireline.QuotedArg("archiveName", archiveName),
		wireline.Uint64Arg("time", uint64(time.Now().Unix())),
		wireline.BoolArg("initialFlag", true),
	); err != nil {
		return fmt.Errorf("PREPROCESS: %w", err)
	}

	if err := d.streamStorage(j, archiveName, manifest); err != nil {
		return err
	}

	storageRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_NEW_STORAGE",
		wireline.CStringArg("entityId", entityID),
		wireline.QuotedArg("storageName", archiveName),
		wireline.Uint64Arg("size", uint64(len(manifest))),
		wireline.CStringArg("indexState", index.IndexStateOK.String()),
		wireline.CStringArg("indexMode", index.IndexModeAuto.String()),
	)
	if err != nil || storageRes.ErrorCode != 0 {
		return resultErr(storageRes, err, "INDEX_NEW_STORAGE")
	}
	storageID, err := resultField(storageRes, "storageId")
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_ADD_FILE",
		wireline.CStringArg("storageId", storageID),
		wireline.QuotedArg("name", archiveName),
		wireline.Uint64Arg("size", uint64(len(manifest))),
		wireline.Uint64Arg("userId", 0),
		wireline.Uint64Arg("groupId", 0),
		wireline.Uint64Arg("permission", 0o644),
		wireline.Uint64Arg("fragmentOffset", 0),
		wireline.Uint64Arg("fragmentSize", uint64(len(manifest))),
	); err != nil {
		return fmt.Errorf("INDEX_ADD_FILE: %w", err)
	}

	if _, err := d.io.ExecuteCommand(archiveCommandTimeout, "POSTPROCESS",
		wireline.QuotedArg("archiveName", archiveName),
		wireline.Uint64Arg("time", uint64(now.Unix())),
		wireline.BoolArg("finalFlag", true),
	); err != nil {
		return fmt.Errorf("POSTPROCESS: %w", err)
	}

	j.DoneCount = 1
	j.DoneSize = uint64(len(manifest))
	j.TotalEntryCount = 1
	j.TotalEntrySize = uint64(len(manifest))
	j.ArchiveSize = uint64(len(manifest))
	j.StorageName = archiveName
	j.StorageDoneSize = uint64(len(manifest))
	j.StorageTotalSize = uint64(len(manifest))

	if _, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_NEW_HISTORY",
		wireline.CStringArg("jobUUID", j.UUID),
		wireline.CStringArg("scheduleUUID", scheduleUUID),
		wireline.QuotedArg("hostName", j.Master),
		wireline.CStringArg("archiveType", archiveType.String()),
		wireline.QuotedArg("errorMessage", ""),
		wireline.FloatArg("duration", time.Since(now).Seconds()),
		wireline.Uint64Arg("totalEntryCount", j.TotalEntryCount),
		wireline.Uint64Arg("skippedEntryCount", 0),
		wireline.Uint64Arg("errorEntryCount", 0),
		wireline.Uint64Arg("totalEntrySize", j.TotalEntrySize),
		wireline.Uint64Arg("skippedEntrySize", 0),
		wireline.Uint64Arg("errorEntrySize", 0),
	); err != nil {
		return fmt.Errorf("INDEX_NEW_HISTORY: %w", err)
	}

	return nil
}

// findOrCreateUUID mirrors the original bar client's "look up the prior
// run, create one if this is the first" sequence.
func (d *Dispatcher) findOrCreateUUID(jobUUID, scheduleUUID string) (string, error) {
	res, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_FIND_UUID",
		wireline.CStringArg("jobUUID", jobUUID),
		wireline.CStringArg("scheduleUUID", scheduleUUID),
	)
	if err == nil && res.ErrorCode == 0 {
		if id, err := resultField(res, "uuidId"); err == nil {
			return id, nil
		}
	}
	newRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "INDEX_NEW_UUID", wireline.CStringArg("jobUUID", jobUUID))
	if err != nil || newRes.ErrorCode != 0 {
		return "", resultErr(newRes, err, "INDEX_NEW_UUID")
	}
	return resultField(newRes, "uuidId")
}

// resultField parses a successful result's payload and extracts key,
// naming the command in any error for easier tracing.
func resultField(res wireline.Result, key string) (string, error) {
	args, err := wireline.ParseArgs(res.Payload)
	if err != nil {
		return "", fmt.Errorf("parsing result payload: %w", err)
	}
	v, err := args.GetString(key)
	if err != nil {
		return "", fmt.Errorf("result missing %s: %w", key, err)
	}
	return v, nil
}

// buildManifest is the content this worker archives: a small snapshot
// of the job's own identity, compressed the same way real archive
// payloads would be (spec §6 compress-algorithm option).
func (d *Dispatcher) buildManifest(j *job.Job, uuidID, entityID string) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := archive.NewEncoder(&buf, archive.AlgorithmZstd)
	if err != nil {
		return nil, fmt.Errorf("constructing archive encoder: %w", err)
	}
	fmt.Fprintf(enc, "jobUUID=%s\nname=%s\nmaster=%s\nuuidId=%s\nentityId=%s\n", j.UUID, j.Name, j.Master, uuidID, entityID)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing archive encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// streamStorage drives the STORAGE_CREATE/WRITE/CLOSE sequence for one
// archive, chunking payload into writeChunkSize pieces (spec §6).
func (d *Dispatcher) streamStorage(j *job.Job, archiveName string, payload []byte) error {
	createRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "STORAGE_CREATE",
		wireline.QuotedArg("archiveName", archiveName),
		wireline.Uint64Arg("archiveSize", uint64(len(payload))),
	)
	if err != nil || createRes.ErrorCode != 0 {
		return resultErr(createRes, err, "STORAGE_CREATE")
	}

	for offset := 0; offset < len(payload); offset += writeChunkSize {
		end := offset + writeChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]
		writeRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "STORAGE_WRITE",
			wireline.Uint64Arg("offset", uint64(offset)),
			wireline.Uint64Arg("length", uint64(len(chunk))),
			wireline.RawArg("data", base64.StdEncoding.EncodeToString(chunk)),
		)
		if err != nil || writeRes.ErrorCode != 0 {
			return resultErr(writeRes, err, "STORAGE_WRITE")
		}
		j.EntryDoneSize = uint64(end)
		j.EntryTotalSize = uint64(len(payload))
	}

	closeRes, err := d.io.ExecuteCommand(archiveCommandTimeout, "STORAGE_CLOSE")
	if err != nil || closeRes.ErrorCode != 0 {
		return resultErr(closeRes, err, "STORAGE_CLOSE")
	}
	return nil
}

// resultErr collapses a failed ExecuteCommand's transport error and
// rejected-result error into one, naming the command that failed.
func resultErr(res wireline.Result, err error, name string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: rejected (code %d): %s", name, res.ErrorCode, res.Payload)
}
