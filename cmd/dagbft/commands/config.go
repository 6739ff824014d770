package commands

import (
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/dagbft/src/config"
)

//CLIConfig contains the configuration of the dagbft commands
type CLIConfig struct {
	DagBFT config.Config `mapstructure:",squash"`

	// LogFile, if set, receives a copy of the log output.
	LogFile string `mapstructure:"log-file"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		DagBFT: *config.NewDefaultConfig(),
	}
}

// AddConfigFlags adds the flags shared by the commands that use the
// configuration file.
func AddConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DagBFT.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.DagBFT.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write the log to this file")
	cmd.Flags().String("moniker", _config.DagBFT.Moniker, "Optional name")
}

// AddCommitterFlags adds the flags that shape the UniversalCommitter.
func AddCommitterFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32("wave-length", _config.DagBFT.WaveLength, "Number of rounds per wave (at least 3)")
	cmd.Flags().Int("leaders", _config.DagBFT.NumberOfLeaders, "Number of leaders per leader round")
	cmd.Flags().Bool("pipeline", _config.DagBFT.Pipeline, "Start a wave at every round")
	cmd.Flags().String("schedule", _config.DagBFT.Schedule, "Leader schedule: round-robin or stake-weighted")
	cmd.Flags().StringSlice("reputation-scores", nil, "One reputation score per authority, used to swap out poorly performing leaders")
	cmd.Flags().Uint64("swap-stake-threshold", _config.DagBFT.SwapStakeThreshold, "Percentage of the stake that may be swapped out of the leader schedule")
}

// AddStoreFlags adds the flags of the persistent store.
func AddStoreFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("store", _config.DagBFT.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DagBFT.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.DagBFT.CacheSize, "Number of items in in-memory caches")
	cmd.Flags().String("committee", _config.DagBFT.CommitteeFile, "Committee file (defaults to committee.json in datadir)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.DagBFT.SetDataDir(_config.DagBFT.DataDir)

	if _config.LogFile != "" {
		if err := addLogFile(_config.LogFile); err != nil {
			return err
		}
	}

	logFields := logrus.Fields{
		"dagbft.DataDir":          _config.DagBFT.DataDir,
		"dagbft.LogLevel":         _config.DagBFT.LogLevel,
		"dagbft.Moniker":          _config.DagBFT.Moniker,
		"dagbft.WaveLength":       _config.DagBFT.WaveLength,
		"dagbft.NumberOfLeaders":  _config.DagBFT.NumberOfLeaders,
		"dagbft.Pipeline":         _config.DagBFT.Pipeline,
		"dagbft.Schedule":         _config.DagBFT.Schedule,
		"dagbft.ReputationScores": _config.DagBFT.ReputationScores,
		"dagbft.CacheSize":        _config.DagBFT.CacheSize,
		"dagbft.Store":            _config.DagBFT.Store,
		"LogFile":                 _config.LogFile,
	}

	if _config.DagBFT.Store {
		logFields["dagbft.DatabaseDir"] = _config.DagBFT.DatabaseDir
	}

	_config.DagBFT.Logger().WithFields(logFields).Debug("Config")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/dagbft.toml (.json, .yaml also work)
	viper.SetConfigName("dagbft")
	viper.AddConfigPath(_config.DagBFT.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.DagBFT.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.DagBFT.Logger().Debugf("No config file found in: %s", _config.DagBFT.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addLogFile replaces the logger of the configuration with one that also
// writes every entry to path.
func addLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	logger := logrus.New()
	logger.Level = config.LogLevel(_config.DagBFT.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	logger.Hooks.Add(lfshook.NewHook(
		path,
		&logrus.TextFormatter{},
	))

	_config.DagBFT.SetLogger(logger)

	return nil
}
