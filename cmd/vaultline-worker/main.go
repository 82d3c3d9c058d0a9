package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/vaultline/pkg/config"
	"github.com/cuemby/vaultline/pkg/log"
	"github.com/cuemby/vaultline/pkg/metrics"
	"github.com/cuemby/vaultline/pkg/security"
	"github.com/cuemby/vaultline/pkg/serverio"
	"github.com/cuemby/vaultline/pkg/worker"
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
	Use:     "vaultline-worker",
	Short:   "vaultline worker: accepts jobs from a master and archives to a storage sink",
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker, listening for master connections",
	RunE:  runStart,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	startCmd.Flags().String("config", "", "Path to a YAML config file")
	startCmd.Flags().String("listen-addr", "", "Override the configured listen address")
	startCmd.Flags().String("password", "", "SHA-256 hash (hex) of the credential this worker accepts from a master")
	startCmd.Flags().String("tls-cert", "", "TLS certificate file; enables TLS when set together with --tls-key")
	startCmd.Flags().String("tls-key", "", "TLS private key file")
	startCmd.Flags().String("tls-cert-dir", "", "Directory holding ca.crt/node.crt/node.key; used when --tls-cert is unset")
	startCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	startCmd.Flags().Bool("batch", false, "Speak the protocol over stdin/stdout instead of listening on a socket")

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("vaultline-worker: loading config: %w", err)
	}

	var override config.Override
	override.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		override.LogLevel = v
	}
	if cmd.Flags().Changed("log-json") {
		jsonOn, _ := cmd.Flags().GetBool("log-json")
		override.LogJSON = &jsonOn
	}
	cfg.ApplyOverrides(override)

	passwordHash, _ := cmd.Flags().GetString("password")
	storedHash, err := parseStoredHash(passwordHash)
	if err != nil {
		return err
	}

	if batch, _ := cmd.Flags().GetBool("batch"); batch {
		return runBatch(storedHash)
	}

	var tlsConfig *tls.Config
	certFile, _ := cmd.Flags().GetString("tls-cert")
	keyFile, _ := cmd.Flags().GetString("tls-key")
	certDir, _ := cmd.Flags().GetString("tls-cert-dir")
	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("vaultline-worker: loading TLS material: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	case certDir != "":
		if !security.CertExists(certDir) {
			return fmt.Errorf("vaultline-worker: no certificate material found in %s", certDir)
		}
		cert, err := security.LoadCertFromFile(certDir)
		if err != nil {
			return fmt.Errorf("vaultline-worker: loading TLS material from %s: %w", certDir, err)
		}
		if security.CertNeedsRotation(cert.Leaf) {
			log.Logger.Warn().Str("certDir", certDir).Time("notAfter", cert.Leaf.NotAfter).Msg("vaultline-worker: certificate due for rotation")
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{*cert}}
	}

	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("vaultline-worker: listening on %s: %w", cfg.ListenAddr, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	defer ln.Close()

	log.Logger.Info().Str("addr", cfg.ListenAddr).Msg("vaultline-worker: listening")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("vaultline-worker: shutting down")
		cancel()
		ln.Close()
	}()

	acceptLoop(ctx, ln, storedHash)
	return nil
}

// parseStoredHash accepts either a hex-encoded SHA-256 hash (the
// expected operational case) or a plaintext fallback hashed on the
// spot, so operators can pass --password=<plaintext> during
// development without precomputing a hash.
func parseStoredHash(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("vaultline-worker: --password is required")
	}
	if len(value) == sha256.Size*2 {
		if b, err := hex.DecodeString(value); err == nil {
			return b, nil
		}
	}
	sum := sha256.Sum256([]byte(value))
	return sum[:], nil
}

// runBatch serves a single dispatch loop over stdin/stdout instead of a
// listener, for offline/scripted operation (spec §9 supplemented
// TransportBatch feature).
func runBatch(storedHash []byte) error {
	io := serverio.NewBatchServerIO(os.Stdin, os.Stdout)
	defer io.Close()

	sess, err := io.AcceptSession()
	if err != nil {
		return fmt.Errorf("vaultline-worker: batch session handshake failed: %w", err)
	}

	d := worker.NewDispatcher(io, sess, storedHash)
	d.Run(context.Background())
	return nil
}

// acceptLoop accepts connections until ctx is cancelled, running each
// accepted connection's handshake and dispatch loop on its own
// goroutine (spec §4.5: one ServerIO, one reader goroutine, per
// connection).
func acceptLoop(ctx context.Context, ln net.Listener, storedHash []byte) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Logger.Warn().Err(err).Msg("vaultline-worker: accept failed")
				continue
			}
		}
		go handleConnection(ctx, conn, storedHash)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, storedHash []byte) {
	transport := serverio.TransportPlain
	if _, ok := conn.(*tls.Conn); ok {
		transport = serverio.TransportTLS
	}
	io := serverio.New(transport, conn)
	defer io.Close()

	connLog := log.WithConnectionID(conn.RemoteAddr().String())

	sess, err := io.AcceptSession()
	if err != nil {
		connLog.Warn().Err(err).Msg("vaultline-worker: session handshake failed")
		return
	}

	d := worker.NewDispatcher(io, sess, storedHash)
	connLog.Info().Msg("vaultline-worker: connection accepted")
	d.Run(ctx)
	connLog.Info().Msg("vaultline-worker: connection closed")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Logger.Info().Str("addr", addr).Msg("vaultline-worker: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Logger.Error().Err(err).Msg("vaultline-worker: metrics server failed")
	}
}
