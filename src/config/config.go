package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/dagbft/src/common"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultCommitteeFile is the default name of the file listing the
	// authorities of the committee.
	DefaultCommitteeFile = "committee.json"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultCacheSize        = 10000
	DefaultStore            = false
	DefaultMaintenanceMode  = false
	DefaultWaveLength       = 3
	DefaultNumberOfLeaders  = 1
	DefaultPipeline         = true
	DefaultSchedule         = "stake-weighted"
	DefaultSwapStake        = 20
	DefaultCommitInterval   = 200 * time.Millisecond
	DefaultMetricsNamespace = "dagbft"
	DefaultServiceAddr      = "127.0.0.1:8000"
)

// Config contains all the configuration properties of a dagbft node.
type Config struct {
	// DataDir is the top-level directory containing dagbft configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// MaintenanceMode when set to true causes the node to initialise in a
	// suspended state. I.e. it accepts blocks but does not commit them.
	// MaintenanceMode only works with a persistant store.
	MaintenanceMode bool `mapstructure:"maintenance-mode"`

	// WaveLength is the number of rounds of a wave: a leader round, at least
	// one voting round, and a decision round. It cannot be less than 3.
	WaveLength uint32 `mapstructure:"wave-length"`

	// NumberOfLeaders is the number of leader slots per leader round.
	NumberOfLeaders int `mapstructure:"leaders"`

	// Pipeline makes every round a leader round by running one committer per
	// round offset of the wave.
	Pipeline bool `mapstructure:"pipeline"`

	// Schedule is the name of the leader schedule: round-robin or
	// stake-weighted.
	Schedule string `mapstructure:"schedule"`

	// ReputationScores, when set, holds one score per authority. The worst
	// scoring authorities are swapped out of the leader schedule for the best
	// scoring ones.
	ReputationScores []uint64 `mapstructure:"reputation-scores"`

	// SwapStakeThreshold is the percentage of the total stake, at most 33,
	// that may be swapped out of the leader schedule.
	SwapStakeThreshold uint64 `mapstructure:"swap-stake-threshold"`

	// CommitInterval is the period of the commit timer. Every tick, the node
	// tries to decide new leaders with the blocks it has accepted.
	CommitInterval time.Duration `mapstructure:"commit-interval"`

	// CommitteeFile is the path of the committee JSON file. Defaults to
	// committee.json in DataDir.
	CommitteeFile string `mapstructure:"committee"`

	// MetricsNamespace prefixes the names of the prometheus metrics.
	MetricsNamespace string `mapstructure:"metrics-namespace"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// ServiceAddr is the IP:PORT of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Registerer is where the metrics are registered. Metrics are still
	// collected, but not exposed, when it is nil.
	Registerer prometheus.Registerer `mapstructure:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		CacheSize:          DefaultCacheSize,
		MaintenanceMode:    DefaultMaintenanceMode,
		WaveLength:         DefaultWaveLength,
		NumberOfLeaders:    DefaultNumberOfLeaders,
		Pipeline:           DefaultPipeline,
		Schedule:           DefaultSchedule,
		SwapStakeThreshold: DefaultSwapStake,
		CommitInterval:     DefaultCommitInterval,
		MetricsNamespace:   DefaultMetricsNamespace,
		ServiceAddr:        DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level dagbft directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CommitteePath returns the full path of the committee file.
func (c *Config) CommitteePath() string {
	if c.CommitteeFile != "" {
		return c.CommitteeFile
	}
	return filepath.Join(c.DataDir, DefaultCommitteeFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "dagbft".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "dagbft")
}

// SetLogger replaces the logger returned by Logger. The CLI uses it to add
// file hooks.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level dagbft config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".DagBFT")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "DagBFT")
		} else {
			return filepath.Join(home, ".dagbft")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
