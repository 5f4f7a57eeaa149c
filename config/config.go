package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultTimerDuration = 60
	defaultRoundCount    = 1
	defaultTimerSweep    = "@every 1s"
	defaultRoomCleanup   = "@every 5m"
)

// Config is the global configuration object which is filled via the configuration file
// and/or SPOKER_* environment variables.
type Config struct {
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	RoomConfig        RoomConfig        `mapstructure:"room"`
	SweepConfig       SweepConfig       `mapstructure:"sweep"`
	LogLevel          string            `mapstructure:"log_level"`
}

// RoomConfig holds the defaults applied at room creation when the create
// request does not specify them.
type RoomConfig struct {
	DefaultTimerDuration int `mapstructure:"default_timer_duration"` // seconds
	DefaultRoundCount    int `mapstructure:"default_round_count"`
}

// SweepConfig configures the cadence of the two background jobs, in
// robfig/cron spec syntax ("@every 1s" etc.).
type SweepConfig struct {
	TimerSpec   string `mapstructure:"timer_spec"`   // auto-reveal sweep
	CleanupSpec string `mapstructure:"cleanup_spec"` // empty-room reaper
}

// BuntDBConfig configures the BuntDB file storage backed database.
type BuntDBConfig struct {
	Name string `mapstructure:"name"`
}

// PersistenceConfig configures the persistence backend. Type is one of
// "buntdb", "sqlite" or "postgres"; DSN applies to the gorm-backed types.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`

	BuntDBConfig BuntDBConfig `mapstructure:"buntdb"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("room.default_timer_duration", defaultTimerDuration)
	viper.SetDefault("room.default_round_count", defaultRoundCount)
	viper.SetDefault("sweep.timer_spec", defaultTimerSweep)
	viper.SetDefault("sweep.cleanup_spec", defaultRoomCleanup)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("SPOKER")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
