package keiro

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keiro.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// go test -run ^TestLoadConfig$ . -count 1
func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("KEIRO_CONFIG", "")
		c, err := LoadConfig("")
		if err != nil {
			t.Fatal(err)
		}
		if c != DefaultConfig() {
			t.Errorf("expected defaults, got %+v", c)
		}
	})

	t.Run("MissingFileKeepsDefaults", func(t *testing.T) {
		c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		if err != nil {
			t.Fatal(err)
		}
		if c.Time.FixedTimestep != DefaultFixedTimestep {
			t.Errorf("expected the default timestep, got %s", c.Time.FixedTimestep)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := writeConfig(t, `
[world]
initial_capacity = 64

[time]
fixed_timestep = "10ms"
maximum_delta_time = "1s"

[log]
level = "debug"
`)
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if c.World.InitialCapacity != 64 {
			t.Errorf("expected capacity 64, got %d", c.World.InitialCapacity)
		}
		if c.Time.FixedTimestep != 10*time.Millisecond || c.Time.MaximumDeltaTime != time.Second {
			t.Errorf("unexpected time config %+v", c.Time)
		}
		if c.Log.zerologLevel() != zerolog.DebugLevel {
			t.Errorf("expected debug level, got %s", c.Log.zerologLevel())
		}
		if c.Snapshot.Path != DefaultConfig().Snapshot.Path {
			t.Errorf("expected the default snapshot path, got %q", c.Snapshot.Path)
		}
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := writeConfig(t, "[time]\nfixed_timestep = \"10ms\"\n")
		t.Setenv("KEIRO_TIME_FIXED_TIMESTEP", "5ms")
		t.Setenv("KEIRO_SNAPSHOT_PATH", "/tmp/other.db")
		c, err := LoadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if c.Time.FixedTimestep != 5*time.Millisecond {
			t.Errorf("expected 5ms from the environment, got %s", c.Time.FixedTimestep)
		}
		if c.Snapshot.Path != "/tmp/other.db" {
			t.Errorf("expected the env snapshot path, got %q", c.Snapshot.Path)
		}
	})

	t.Run("PathFromEnv", func(t *testing.T) {
		t.Setenv("KEIRO_CONFIG", writeConfig(t, "[world]\ninitial_capacity = 7\n"))
		c, err := LoadConfig("")
		if err != nil {
			t.Fatal(err)
		}
		if c.World.InitialCapacity != 7 {
			t.Errorf("expected capacity 7, got %d", c.World.InitialCapacity)
		}
	})

	t.Run("InvalidTimestep", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "[time]\nfixed_timestep = \"0s\"\n"))
		if !IsConfigurationError(err) {
			t.Errorf("expected a configuration error, got %v", err)
		}
	})

	t.Run("MalformedFile", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "[time\n"))
		if err == nil {
			t.Error("expected a parse error")
		}
	})
}

// go test -run ^TestLogLevel$ . -count 1
func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"trace", zerolog.TraceLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := (LogConfig{Level: tt.in}).zerologLevel(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
