package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/vaultline/pkg/connector"
	"github.com/cuemby/vaultline/pkg/index/boltindex"
	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/session"
	"github.com/cuemby/vaultline/pkg/storagebackend"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vaultline-master",
	Short:   "vaultline master: drives archive jobs on remote workers",
	Version: Version,
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Job operations against a worker",
}

var jobRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Transmit and start a job on a worker, then watch it to completion",
	RunE:  runJob,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	jobRunCmd.Flags().String("worker", "127.0.0.1:8820", "Worker address (host:port)")
	jobRunCmd.Flags().String("name", "", "Job name")
	jobRunCmd.Flags().String("hostname", "", "This master's hostname, presented during AUTHORIZE")
	jobRunCmd.Flags().String("host-uuid", "", "This master's persistent host UUID, used as the AUTHORIZE credential")
	jobRunCmd.Flags().String("encrypt-type", "NONE", "Credential encryption: NONE or RSA")
	jobRunCmd.Flags().String("archive-type", "full", "Archive type passed to JOB_START")
	jobRunCmd.Flags().Bool("dry-run", false, "Pass dryRun=yes to JOB_START")
	jobRunCmd.Flags().Bool("tls", false, "Dial the worker over TLS")
	jobRunCmd.Flags().StringArray("include", nil, "Include-list pattern (repeatable)")
	jobRunCmd.Flags().StringArray("exclude", nil, "Exclude-list pattern (repeatable)")
	jobRunCmd.Flags().String("data-dir", "./vaultline-data", "Directory the master's index database persists into")
	jobRunCmd.Flags().String("storage-dir", "./vaultline-storage", "Directory archives received from the worker are stored under")
	jobRunCmd.MarkFlagRequired("host-uuid")

	jobCmd.AddCommand(jobRunCmd)
	rootCmd.AddCommand(jobCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runJob(cmd *cobra.Command, args []string) error {
	workerAddr, _ := cmd.Flags().GetString("worker")
	name, _ := cmd.Flags().GetString("name")
	hostname, _ := cmd.Flags().GetString("hostname")
	hostUUID, _ := cmd.Flags().GetString("host-uuid")
	encryptTypeStr, _ := cmd.Flags().GetString("encrypt-type")
	archiveType, _ := cmd.Flags().GetString("archive-type")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	useTLS, _ := cmd.Flags().GetBool("tls")
	includes, _ := cmd.Flags().GetStringArray("include")
	excludes, _ := cmd.Flags().GetStringArray("exclude")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	storageDir, _ := cmd.Flags().GetString("storage-dir")

	if name == "" {
		name = fmt.Sprintf("job-%s", uuid.NewString()[:8])
	}
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("vaultline-master: resolving hostname: %w", err)
		}
		hostname = h
	}

	encryptType, err := session.ParseEncryptType(encryptTypeStr)
	if err != nil {
		return fmt.Errorf("vaultline-master: %w", err)
	}

	var tlsConfig *tls.Config
	if useTLS {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	idx, err := boltindex.Open(dataDir)
	if err != nil {
		return fmt.Errorf("vaultline-master: opening index: %w", err)
	}
	defer idx.Close()
	backend := storagebackend.NewLocal(storageDir)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("vaultline-master: interrupted")
		cancel()
	}()

	conn, err := connector.Connect(ctx, workerAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("vaultline-master: connecting to %s: %w", workerAddr, err)
	}
	defer conn.Close()

	providers := connector.NewSequence(connector.NewCallerSuppliedProvider(hostUUID))
	if err := conn.Authorize(ctx, hostname, hostUUID, encryptType, providers); err != nil {
		return fmt.Errorf("vaultline-master: authorize: %w", err)
	}
	log.Logger.Info().Str("worker", workerAddr).Msg("vaultline-master: authorized")

	go conn.ServeArchive(ctx, backend, idx)

	jobUUID := uuid.NewString()
	scheduleUUID := uuid.NewString()
	jobLog := log.WithJobUUID(jobUUID)

	spec := connector.JobSpec{
		Name:         name,
		JobUUID:      jobUUID,
		ScheduleUUID: scheduleUUID,
		Master:       hostname,
		IncludeList:  patternEntries(includes),
		ExcludeList:  patternEntries(excludes),
	}
	if err := conn.TransmitJob(spec); err != nil {
		return fmt.Errorf("vaultline-master: transmit job: %w", err)
	}
	jobLog.Info().Msg("vaultline-master: job transmitted")

	if err := conn.Start(jobUUID, scheduleUUID, archiveType, dryRun); err != nil {
		return fmt.Errorf("vaultline-master: start job: %w", err)
	}

	status, err := conn.WatchUntilTerminal(ctx, jobUUID, func(s connector.Status) {
		jobLog.Info().
			Str("state", s.State).
			Uint64("doneSize", s.DoneSize).
			Uint64("totalEntrySize", s.TotalEntrySize).
			Msg("vaultline-master: job status")
	})
	if err != nil {
		return fmt.Errorf("vaultline-master: watching job: %w", err)
	}

	fmt.Printf("job %s finished: state=%s errorCode=%d message=%q\n", jobUUID, status.State, status.ErrorCode, status.Message)
	if status.State != "Done" {
		os.Exit(1)
	}
	return nil
}

func patternEntries(patterns []string) []connector.ListEntry {
	entries := make([]connector.ListEntry, 0, len(patterns))
	for _, p := range patterns {
		entries = append(entries, connector.ListEntry{PatternType: "glob", Pattern: p})
	}
	return entries
}
