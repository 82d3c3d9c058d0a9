package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/metrics"
	"github.com/cuemby/vaultline/pkg/protoerr"
	"github.com/cuemby/vaultline/pkg/security"
	"github.com/cuemby/vaultline/pkg/serverio"
	"github.com/cuemby/vaultline/pkg/session"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// commandTimeout bounds every executeCommand issued by the connector,
// per spec §5 "every executeCommand carries a timeout (default 60 s)".
const commandTimeout = 60 * time.Second

// pollInitial and pollMax bound JOB_STATUS polling cadence (spec §4.6:
// "every 1 s; implementer may adapt exponentially up to 5 s").
const (
	pollInitial = 1 * time.Second
	pollMax     = 5 * time.Second
	pollFactor  = 1.5
)

// ListEntry is one row of any of the five job lists (spec §4.6
// "Transmit job"): INCLUDE_LIST, EXCLUDE_LIST, MOUNT_LIST,
// EXCLUDE_COMPRESS_LIST, SOURCE_LIST. Not every field applies to every
// list; unused fields are left zero.
type ListEntry struct {
	EntryType     string
	PatternType   string
	Pattern       string
	Name          string
	AlwaysUnmount bool
}

// JobSpec bundles everything Connector.TransmitJob needs to drive the
// JOB_NEW / JOB_OPTION_SET / *_LIST sequence in spec §4.6.
type JobSpec struct {
	Name         string
	JobUUID      string
	ScheduleUUID string
	Master       string
	Options      []JobOption

	IncludeList         []ListEntry
	ExcludeList         []ListEntry
	MountList           []ListEntry
	ExcludeCompressList []ListEntry
	SourceList          []ListEntry
}

// JobOption is one JOB_OPTION_SET key/value pair (spec §6 "Job-option
// enumerated keys").
type JobOption struct {
	Name  string
	Value string
}

// Connector drives one logical channel to a remote worker across the
// lifetime of a job (spec §4.6).
type Connector struct {
	io      *serverio.ServerIO
	session *session.Session
}

// Connect opens a TCP connection to addr (optionally TLS-wrapped when
// tlsConfig is non-nil), consumes the SESSION line, and starts the
// dedicated reader loop (spec §4.6 "Connect").
func Connect(ctx context.Context, addr string, tlsConfig *tls.Config) (*Connector, error) {
	dialer := &net.Dialer{}
	var conn net.Conn
	var err error
	if tlsConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connector: dialing %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	transport := serverio.TransportPlain
	if tlsConfig != nil {
		transport = serverio.TransportTLS
	}
	io := serverio.New(transport, conn)

	sess, err := io.StartSession(ctx)
	if err != nil {
		io.Close()
		return nil, fmt.Errorf("connector: establishing session: %w", err)
	}

	return &Connector{io: io, session: sess}, nil
}

// Session returns the session established on Connect.
func (c *Connector) Session() *session.Session {
	return c.session
}

// Authorize issues AUTHORIZE, retrying against a candidate-password
// sequence up to protoerr.MaxPasswordRequests times (spec §7 "Retry
// semantics"). hostUUID is this host's persistent identity, encrypted
// under the peer's session public key when RSA is available.
func (c *Connector) Authorize(ctx context.Context, hostname, hostUUID string, encryptType session.EncryptType, providers *Sequence) error {
	if err := c.session.SelectEncryptType(encryptType); err != nil {
		return fmt.Errorf("connector: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < protoerr.MaxPasswordRequests; attempt++ {
		if providers != nil {
			if _, ok := providers.Password(attempt); !ok && attempt > 0 {
				return fmt.Errorf("connector: %w", ErrPasswordsExhausted)
			}
		}

		encryptedUUID, err := security.EncodeCredential(c.session, encryptType, hostUUID)
		if err != nil {
			return fmt.Errorf("connector: encoding credential: %w", err)
		}

		res, err := c.io.ExecuteCommand(commandTimeout, "AUTHORIZE",
			wireline.CStringArg("encryptType", encryptType.String()),
			wireline.QuotedArg("name", hostname),
			wireline.RawArg("encryptedUUID", encryptedUUID),
		)
		if err != nil {
			lastErr = err
			metrics.AuthorizeAttemptsTotal.WithLabelValues("transport_error").Inc()
			continue
		}
		if res.ErrorCode == 0 {
			metrics.AuthorizeAttemptsTotal.WithLabelValues("success").Inc()
			return nil
		}
		metrics.AuthorizeAttemptsTotal.WithLabelValues("rejected").Inc()
		lastErr = protoerr.New(protoerr.InvalidSshPassword, "authorize rejected: %s", res.Payload)
	}
	return fmt.Errorf("connector: authorize failed after %d attempts: %w", protoerr.MaxPasswordRequests, lastErr)
}

// TransmitJob issues JOB_NEW, every JOB_OPTION_SET, and repopulates
// each of the five lists (spec §4.6 "Transmit job"). On any failure it
// issues a compensating JOB_DELETE before returning the error.
func (c *Connector) TransmitJob(spec JobSpec) error {
	if _, err := c.io.ExecuteCommand(commandTimeout, "JOB_NEW",
		wireline.QuotedArg("name", spec.Name),
		wireline.CStringArg("jobUUID", spec.JobUUID),
		wireline.CStringArg("scheduleUUID", spec.ScheduleUUID),
		wireline.QuotedArg("master", spec.Master),
	); err != nil {
		return fmt.Errorf("connector: JOB_NEW: %w", err)
	}

	if err := c.populateJob(spec); err != nil {
		c.deleteJob(spec.JobUUID)
		return err
	}
	return nil
}

func (c *Connector) populateJob(spec JobSpec) error {
	exec := func(name string, args ...wireline.Arg) error {
		res, err := c.io.ExecuteCommand(commandTimeout, name, args...)
		if err == nil && res.ErrorCode != 0 {
			err = protoerr.New(protoerr.Kind(res.ErrorCode), "%s", res.Payload)
		}
		return err
	}

	for _, opt := range spec.Options {
		if err := exec("JOB_OPTION_SET",
			wireline.CStringArg("jobUUID", spec.JobUUID),
			wireline.CStringArg("name", opt.Name),
			wireline.QuotedArg("value", opt.Value),
		); err != nil {
			return fmt.Errorf("connector: JOB_OPTION_SET %s: %w", opt.Name, err)
		}
	}

	lists := []struct {
		clearName, addName string
		entries            []ListEntry
	}{
		{"INCLUDE_LIST_CLEAR", "INCLUDE_LIST_ADD", spec.IncludeList},
		{"EXCLUDE_LIST_CLEAR", "EXCLUDE_LIST_ADD", spec.ExcludeList},
		{"MOUNT_LIST_CLEAR", "MOUNT_LIST_ADD", spec.MountList},
		{"EXCLUDE_COMPRESS_LIST_CLEAR", "EXCLUDE_COMPRESS_LIST_ADD", spec.ExcludeCompressList},
		{"SOURCE_LIST_CLEAR", "SOURCE_LIST_ADD", spec.SourceList},
	}
	for _, l := range lists {
		if err := exec(l.clearName, wireline.CStringArg("jobUUID", spec.JobUUID)); err != nil {
			return fmt.Errorf("connector: %s: %w", l.clearName, err)
		}
		for _, e := range l.entries {
			args := []wireline.Arg{wireline.CStringArg("jobUUID", spec.JobUUID)}
			if e.EntryType != "" {
				args = append(args, wireline.CStringArg("entryType", e.EntryType))
			}
			if e.PatternType != "" {
				args = append(args, wireline.CStringArg("patternType", e.PatternType))
			}
			if e.Pattern != "" {
				args = append(args, wireline.QuotedArg("pattern", e.Pattern))
			}
			if e.Name != "" {
				args = append(args, wireline.QuotedArg("name", e.Name))
			}
			if l.addName == "MOUNT_LIST_ADD" {
				args = append(args, wireline.BoolArg("alwaysUnmount", e.AlwaysUnmount))
			}
			if err := exec(l.addName, args...); err != nil {
				return fmt.Errorf("connector: %s: %w", l.addName, err)
			}
		}
	}
	return nil
}

func (c *Connector) deleteJob(jobUUID string) {
	if _, err := c.io.ExecuteCommand(commandTimeout, "JOB_DELETE", wireline.CStringArg("jobUUID", jobUUID)); err != nil {
		log.WithJobUUID(jobUUID).Warn().Err(err).Msg("connector: compensating JOB_DELETE failed")
	}
}

// Start issues JOB_START (spec §4.6 "Start and drive").
func (c *Connector) Start(jobUUID, scheduleUUID string, archiveType string, dryRun bool) error {
	_, err := c.io.ExecuteCommand(commandTimeout, "JOB_START",
		wireline.CStringArg("jobUUID", jobUUID),
		wireline.CStringArg("scheduleUUID", scheduleUUID),
		wireline.CStringArg("archiveType", archiveType),
		wireline.BoolArg("dryRun", dryRun),
	)
	if err != nil {
		c.deleteJob(jobUUID)
		return fmt.Errorf("connector: JOB_START: %w", err)
	}
	return nil
}

// Status is one JOB_STATUS poll result (spec §6 result keys).
type Status struct {
	State             string
	ErrorCode         uint64
	ErrorData         string
	DoneCount         uint64
	DoneSize          uint64
	TotalEntryCount   uint64
	TotalEntrySize    uint64
	SkippedEntryCount uint64
	SkippedEntrySize  uint64
	ErrorEntryCount   uint64
	ErrorEntrySize    uint64
	ArchiveSize       uint64
	CompressionRatio  float64
	EntryName         string
	EntryDoneSize     uint64
	EntryTotalSize    uint64
	StorageName       string
	StorageDoneSize   uint64
	StorageTotalSize  uint64
	VolumeNumber      uint64
	VolumeProgress    float64
	Message           string
}

func statusFromPayload(payload string) (Status, error) {
	args, err := wireline.ParseArgs(payload)
	if err != nil {
		return Status{}, fmt.Errorf("connector: parsing JOB_STATUS payload: %w", err)
	}
	get := func(key string) uint64 {
		v, _ := args.GetUint64(key)
		return v
	}
	getf := func(key string) float64 {
		s := args.GetOr(key, "0")
		var f float64
		fmt.Sscanf(s, "%g", &f)
		return f
	}
	return Status{
		State:             args.GetOr("state", ""),
		ErrorCode:         get("errorCode"),
		ErrorData:         args.GetOr("errorData", ""),
		DoneCount:         get("doneCount"),
		DoneSize:          get("doneSize"),
		TotalEntryCount:   get("totalEntryCount"),
		TotalEntrySize:    get("totalEntrySize"),
		SkippedEntryCount: get("skippedEntryCount"),
		SkippedEntrySize:  get("skippedEntrySize"),
		ErrorEntryCount:   get("errorEntryCount"),
		ErrorEntrySize:    get("errorEntrySize"),
		ArchiveSize:       get("archiveSize"),
		CompressionRatio:  getf("compressionRatio"),
		EntryName:         args.GetOr("entryName", ""),
		EntryDoneSize:     get("entryDoneSize"),
		EntryTotalSize:    get("entryTotalSize"),
		StorageName:       args.GetOr("storageName", ""),
		StorageDoneSize:   get("storageDoneSize"),
		StorageTotalSize:  get("storageTotalSize"),
		VolumeNumber:      get("volumeNumber"),
		VolumeProgress:    getf("volumeProgress"),
		Message:           args.GetOr("message", ""),
	}, nil
}

// Poll issues one JOB_STATUS and parses the response.
func (c *Connector) Poll(jobUUID string) (Status, error) {
	res, err := c.io.ExecuteCommand(commandTimeout, "JOB_STATUS", wireline.CStringArg("jobUUID", jobUUID))
	if err != nil {
		return Status{}, err
	}
	if res.ErrorCode != 0 {
		return Status{}, protoerr.New(protoerr.Kind(res.ErrorCode), "JOB_STATUS: %s", res.Payload)
	}
	return statusFromPayload(res.Payload)
}

// terminalStates are reported state names that end polling.
var terminalStates = map[string]bool{"Done": true, "Error": true, "Aborted": true}

// WatchUntilTerminal polls at an exponentially backed-off cadence
// (spec §4.6: "every 1 s; implementer may adapt exponentially up to
// 5 s"), invoking onStatus after every successful poll, until the job
// reaches a terminal state, ctx is cancelled, or a poll returns a
// disconnected error. Any other poll error is logged and the poll is
// retried at the next interval.
func (c *Connector) WatchUntilTerminal(ctx context.Context, jobUUID string, onStatus func(Status)) (Status, error) {
	interval := pollInitial
	for {
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		default:
		}

		status, err := c.Poll(jobUUID)
		var perr *protoerr.Error
		switch {
		case err != nil && errors.As(err, &perr) && perr.Kind == protoerr.Disconnected:
			return Status{}, err
		case err != nil:
			log.WithJobUUID(jobUUID).Warn().Err(err).Msg("connector: status poll failed, retrying")
		default:
			if onStatus != nil {
				onStatus(status)
			}
			if terminalStates[status.State] {
				return status, nil
			}
		}

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * pollFactor)
		if interval > pollMax {
			interval = pollMax
		}
	}
}

// Abort issues JOB_ABORT.
func (c *Connector) Abort(jobUUID string) error {
	_, err := c.io.ExecuteCommand(commandTimeout, "JOB_ABORT", wireline.CStringArg("jobUUID", jobUUID))
	return err
}

// Close tears down the ServerIO, cancelling outstanding waiters (spec
// §4.6 "Tear down").
func (c *Connector) Close() error {
	return c.io.Close()
}
