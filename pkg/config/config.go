package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables for either a vaultline-master or
// vaultline-worker process. Fields not relevant to a given role are
// left zero.
type Config struct {
	// ListenAddr is the address the worker accepts connections on, or
	// the address the master dials for a directly-configured peer.
	ListenAddr string `yaml:"listen_addr"`

	// TLS, when non-nil, upgrades the connection per spec §4.5.
	TLS *TLSConfig `yaml:"tls,omitempty"`

	// RSAKeyBits is the configured session keypair size (default 2048).
	// pkg/session does not read it: the keypair is always generated at
	// its fixed rsaKeyBits size.
	RSAKeyBits int `yaml:"rsa_key_bits"`

	// CommandTimeout is the configured ExecuteCommand timeout (default
	// 60 s). The connector and worker do not read it; each uses its own
	// fixed 60-second constant.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// PollInterval is the configured initial JOB_STATUS poll cadence
	// (default 1 s). The connector does not read it; it polls from its
	// own constants, starting at 1 s and growing by 1.5x up to 5 s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxPasswordAttempts is the configured Authorize attempt bound
	// (default 5). Authorize does not read it; its loop is bounded by
	// protoerr.MaxPasswordRequests.
	MaxPasswordAttempts int `yaml:"max_password_attempts"`

	// IndexDriver selects the master's index.IndexHandle backing store.
	// Only "bolt" is implemented.
	IndexDriver string `yaml:"index_driver"`

	// IndexDataDir is the directory the index driver persists into.
	IndexDataDir string `yaml:"index_data_dir"`

	// StorageDriver selects the master's local storagebackend.StorageBackend
	// implementation. Only "local" is implemented; other values name
	// the storagebackend.StorageBackend adapters a deployment wires
	// in externally (sftp, s3, ftp, webdav).
	StorageDriver string `yaml:"storage_driver"`

	// StorageBaseDir roots the local storage driver.
	StorageBaseDir string `yaml:"storage_base_dir"`

	// LogLevel and LogJSON mirror pkg/log.Config.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// TLSConfig names the certificate material for the optional TLS
// upgrade path (spec §4.5).
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Default returns the baseline configuration applied before a file or
// flags are layered on top.
func Default() Config {
	return Config{
		ListenAddr:          "0.0.0.0:8820",
		RSAKeyBits:          2048,
		CommandTimeout:      60 * time.Second,
		PollInterval:        1 * time.Second,
		MaxPasswordAttempts: 5,
		IndexDriver:         "bolt",
		IndexDataDir:        "./vaultline-data",
		StorageDriver:       "local",
		StorageBaseDir:      "./vaultline-storage",
		LogLevel:            "info",
	}
}

// Load reads and parses a YAML config file on top of Default. A
// missing path is not an error; Load returns Default() unchanged so
// callers can rely purely on CLI flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Override holds the subset of fields a cobra command may have set
// explicitly via flags. ApplyOverrides copies each non-zero field onto
// cfg, giving flags precedence over the file (teacher's
// flag-then-config pattern).
type Override struct {
	ListenAddr          string
	CommandTimeout      time.Duration
	PollInterval        time.Duration
	MaxPasswordAttempts int
	IndexDataDir        string
	StorageBaseDir      string
	LogLevel            string
	LogJSON             *bool
}

// ApplyOverrides layers o onto cfg in place, skipping zero-valued
// fields so an unset flag never clobbers a value from the file.
func (cfg *Config) ApplyOverrides(o Override) {
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
	if o.CommandTimeout != 0 {
		cfg.CommandTimeout = o.CommandTimeout
	}
	if o.PollInterval != 0 {
		cfg.PollInterval = o.PollInterval
	}
	if o.MaxPasswordAttempts != 0 {
		cfg.MaxPasswordAttempts = o.MaxPasswordAttempts
	}
	if o.IndexDataDir != "" {
		cfg.IndexDataDir = o.IndexDataDir
	}
	if o.StorageBaseDir != "" {
		cfg.StorageBaseDir = o.StorageBaseDir
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogJSON != nil {
		cfg.LogJSON = *o.LogJSON
	}
}
