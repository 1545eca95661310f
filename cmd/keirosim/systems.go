package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/edwinsyarief/keiro"
)

type Position struct{ X, Y float64 }

type Velocity struct{ X, Y float64 }

type Lifetime struct{ Remaining time.Duration }

// simStats is a world resource shared by the spawn, age and report systems.
type simStats struct {
	Spawned int
	Expired int
}

const (
	spawnName  = "SpawnSystem"
	loaderName = "SpriteLoaderSystem"
	moveName   = "MoveSystem"
	ageName    = "AgeSystem"
	reportName = "ReportSystem"
)

func registerSystems(reg *keiro.RegistryContext) error {
	specs := []keiro.SystemSpec{
		{
			Name:    spawnName,
			Group:   keiro.InitializationGroupName,
			Factory: func() keiro.System { return &spawnSystem{} },
		},
		{
			Name:    loaderName,
			Group:   keiro.InitializationGroupName,
			After:   []string{spawnName},
			Factory: func() keiro.System { return &spriteLoader{requested: map[keiro.Entity]bool{}} },
		},
		{
			Name:    moveName,
			Group:   keiro.FixedStepGroupName,
			Factory: func() keiro.System { return &moveSystem{} },
		},
		{
			Name:    ageName,
			Group:   keiro.FixedStepGroupName,
			After:   []string{moveName},
			Factory: func() keiro.System { return &ageSystem{} },
		},
		{
			Name:         reportName,
			OrderLast:    true,
			AlwaysUpdate: true,
			Factory:      func() keiro.System { return &reportSystem{every: 60} },
		},
	}
	for _, s := range specs {
		if _, err := reg.Systems.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// spawnSystem creates the particles once and then switches itself off.
type spawnSystem struct{}

func (s *spawnSystem) OnUpdate(ctx *keiro.SystemContext) error {
	cb := ctx.Commands()
	for range *particles {
		e, err := cb.CreateEntity(keiro.NewArchetype())
		if err != nil {
			return err
		}
		angle := rand.Float64() * 2 * math.Pi
		speed := 1 + rand.Float64()*4
		if err := keiro.AddComponent(cb, e, Position{}); err != nil {
			return err
		}
		if err := keiro.AddComponent(cb, e, Velocity{X: speed * math.Cos(angle), Y: speed * math.Sin(angle)}); err != nil {
			return err
		}
		life := time.Duration(500+rand.IntN(2500)) * time.Millisecond
		if err := keiro.AddComponent(cb, e, Lifetime{Remaining: life}); err != nil {
			return err
		}
	}
	if stats, ok := keiro.GetResource[simStats](ctx.Resources()); ok {
		stats.Spawned += *particles
	}
	logger := ctx.Logger()
	logger.Info().Int("particles", *particles).Msg("spawned")
	ctx.SetEnabled(false)
	return nil
}

// spriteLoader requests a sprite for every new particle. The load completes
// on another goroutine and binds through the world's host completion queue.
type spriteLoader struct {
	requested map[keiro.Entity]bool
}

func (s *spriteLoader) OnCreate(ctx *keiro.SystemContext) error {
	return ctx.SetQuery(keiro.NewQuery(keiro.Require[Lifetime](ctx.Registry())))
}

func (s *spriteLoader) OnUpdate(ctx *keiro.SystemContext) error {
	for _, e := range ctx.Entities() {
		if s.requested[e] {
			continue
		}
		s.requested[e] = true
		done := ctx.World().HostCompletion(e)
		go func(e keiro.Entity) {
			done(fmt.Sprintf("sprite-%d", e.GUID), nil)
		}(e)
	}
	return nil
}

type moveSystem struct{}

func (s *moveSystem) OnCreate(ctx *keiro.SystemContext) error {
	reg := ctx.Registry()
	return ctx.SetQuery(keiro.NewQuery(keiro.Require[Position](reg), keiro.Require[Velocity](reg)))
}

func (s *moveSystem) OnUpdate(ctx *keiro.SystemContext) error {
	dt := ctx.Time().Delta.Seconds()
	store := ctx.Store()
	for _, e := range ctx.Entities() {
		pos, _ := keiro.GetComponent[Position](store, e)
		vel, _ := keiro.GetComponent[Velocity](store, e)
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt
	}
	return nil
}

type ageSystem struct{}

func (s *ageSystem) OnCreate(ctx *keiro.SystemContext) error {
	return ctx.SetQuery(keiro.NewQuery(keiro.Require[Lifetime](ctx.Registry())))
}

func (s *ageSystem) OnUpdate(ctx *keiro.SystemContext) error {
	dt := ctx.Time().Delta
	store := ctx.Store()
	stats, _ := keiro.GetResource[simStats](ctx.Resources())
	for _, e := range ctx.Entities() {
		life, _ := keiro.GetComponent[Lifetime](store, e)
		if life.Remaining <= 0 {
			continue
		}
		life.Remaining -= dt
		if life.Remaining <= 0 {
			if err := ctx.Commands().DestroyEntity(e); err != nil {
				return err
			}
			if stats != nil {
				stats.Expired++
			}
		}
	}
	return nil
}

type reportSystem struct {
	every uint64
}

func (s *reportSystem) OnUpdate(ctx *keiro.SystemContext) error {
	w := ctx.World()
	if w.Frame()%s.every != 0 {
		return nil
	}
	stats, _ := keiro.GetResource[simStats](ctx.Resources())
	logger := ctx.Logger()
	logger.Info().
		Uint64("frame", w.Frame()).
		Int("alive", ctx.Store().Count()).
		Int("spawned", stats.Spawned).
		Int("expired", stats.Expired).
		Dur("elapsed", ctx.Time().Elapsed).
		Msg("tick")
	return nil
}
