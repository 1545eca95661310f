// keirosim builds a small particle world and ticks it for a number of frames.
//
//	go run ./cmd/keirosim -frames 300 -schedule schedule.toml -snapshot
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edwinsyarief/keiro"
	"github.com/edwinsyarief/keiro/snapshotdb"
)

var (
	configPath   = flag.String("config", "", "Config file (default $KEIRO_CONFIG)")
	schedulePath = flag.String("schedule", "", "Schedule manifest applied after registration")
	frames       = flag.Int("frames", 120, "Frames to simulate")
	frameTime    = flag.Duration("dt", 16*time.Millisecond, "Wall time per frame")
	particles    = flag.Int("particles", 64, "Particles spawned on the first frame")
	snapshot     = flag.Bool("snapshot", false, "Archive a snapshot after the last frame")
)

func main() {
	flag.Parse()

	cfg, err := keiro.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	reg := keiro.NewRegistryContext(nil)
	if err := reg.Init(); err != nil {
		logger.Fatal().Err(err).Msg("registry")
	}
	if err := registerSystems(reg); err != nil {
		logger.Fatal().Err(err).Msg("register systems")
	}
	if *schedulePath != "" {
		sched, err := keiro.LoadSchedule(*schedulePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("schedule")
		}
		if err := sched.Apply(reg.Systems); err != nil {
			logger.Fatal().Err(err).Msg("apply schedule")
		}
	}

	w, err := keiro.NewWorld("keirosim",
		keiro.WithConfig(cfg),
		keiro.WithLogger(logger),
		keiro.WithRegistry(reg),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("world")
	}
	defer w.Dispose()

	if err := keiro.AddResource(w.Resources(), &simStats{}); err != nil {
		logger.Fatal().Err(err).Msg("resources")
	}

	keiro.Subscribe(w.Events(), func(ev keiro.HostObjectAttached) {
		logger.Debug().Stringer("entity", ev.Entity).Interface("handle", ev.Handle).Msg("sprite bound")
	})

	for _, name := range []string{spawnName, loaderName, moveName, ageName, reportName} {
		if _, err := w.CreateSystem(name); err != nil {
			logger.Fatal().Err(err).Str("system", name).Msg("create system")
		}
	}

	for range *frames {
		if err := w.Update(*frameTime); err != nil {
			logger.Fatal().Err(err).Uint64("frame", w.Frame()).Msg("update")
		}
	}
	logger.Info().
		Uint64("frames", w.Frame()).
		Int("entities", w.Store().Count()).
		Dur("elapsed", w.Time().Elapsed).
		Msg("simulation finished")

	if *snapshot {
		if err := archive(w, cfg.Snapshot.Path); err != nil {
			logger.Fatal().Err(err).Msg("snapshot")
		}
	}
}

func archive(w *keiro.World, path string) error {
	store, err := snapshotdb.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.Save(context.Background(), w.Snapshot())
	if err != nil {
		return err
	}
	logger := w.Logger()
	logger.Info().Str("id", id.String()).Str("path", path).Msg("snapshot archived")
	return nil
}
