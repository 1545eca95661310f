package keiro

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultFixedTimestep is the step of the fixed-rate simulation group.
const DefaultFixedTimestep = time.Second / 60

// Config holds runtime settings for a World.
type Config struct {
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Log      LogConfig      `mapstructure:"log"`
	Time     TimeConfig     `mapstructure:"time"`
	World    WorldConfig    `mapstructure:"world"`
}

// WorldConfig sizes the entity store.
type WorldConfig struct {
	InitialCapacity int `mapstructure:"initial_capacity"`
}

// TimeConfig drives the fixed-rate group.
type TimeConfig struct {
	FixedTimestep time.Duration `mapstructure:"fixed_timestep"`
	// MaximumDeltaTime caps how far one tick may catch up.
	MaximumDeltaTime time.Duration `mapstructure:"maximum_delta_time"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SnapshotConfig locates the snapshot archive.
type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		World: WorldConfig{InitialCapacity: 1024},
		Time: TimeConfig{
			FixedTimestep:    DefaultFixedTimestep,
			MaximumDeltaTime: 333 * time.Millisecond,
		},
		Log:      LogConfig{Level: "info"},
		Snapshot: SnapshotConfig{Path: "keiro-snapshots.db"},
	}
}

// LoadConfig reads configuration from a TOML file and the environment. The
// file is path, or $KEIRO_CONFIG when path is empty; a missing file leaves the
// defaults. Env var overrides use prefix KEIRO_, e.g. KEIRO_TIME_FIXED_TIMESTEP.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("world.initial_capacity", def.World.InitialCapacity)
	v.SetDefault("time.fixed_timestep", def.Time.FixedTimestep)
	v.SetDefault("time.maximum_delta_time", def.Time.MaximumDeltaTime)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("snapshot.path", def.Snapshot.Path)

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("KEIRO_CONFIG")
	}

	v.SetEnvPrefix("KEIRO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, eris.Wrapf(err, "read config %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, eris.Wrap(err, "unmarshal config")
	}
	if c.Time.FixedTimestep <= 0 {
		return Config{}, configErr("time.fixed_timestep must be positive")
	}
	if c.Time.MaximumDeltaTime < 0 {
		return Config{}, configErr("time.maximum_delta_time must not be negative")
	}
	return c, nil
}

func (c LogConfig) zerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
