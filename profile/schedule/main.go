// Profiling:
// go build ./profile/schedule
// go tool pprof -http=":8000" -nodefraction=0.001 ./schedule cpu.pprof

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"

	"github.com/edwinsyarief/keiro"
)

type noop struct{}

func (noop) OnUpdate(*keiro.SystemContext) error { return nil }

func main() {
	rounds := 20
	systems := 200
	frames := 2000
	p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	run(rounds, systems, frames)
	p.Stop()
}

// run builds a chain of systems, each ordered after its predecessor and
// registered in reverse, so every sort has real work to do.
func run(rounds, numSystems, frames int) {
	for range rounds {
		reg := keiro.NewRegistryContext(nil)
		if err := reg.Init(); err != nil {
			panic(err)
		}
		for i := numSystems - 1; i >= 0; i-- {
			spec := keiro.SystemSpec{
				Name:    fmt.Sprintf("System%03d", i),
				Factory: func() keiro.System { return noop{} },
			}
			if i > 0 {
				spec.After = []string{fmt.Sprintf("System%03d", i-1)}
			}
			if _, err := reg.Systems.Register(spec); err != nil {
				panic(err)
			}
		}
		w, err := keiro.NewWorld("profile", keiro.WithRegistry(reg), keiro.WithLogger(zerolog.New(io.Discard)))
		if err != nil {
			panic(err)
		}
		for i := range numSystems {
			if _, err := w.CreateSystem(fmt.Sprintf("System%03d", i)); err != nil {
				panic(err)
			}
		}
		for range frames {
			if err := w.SortSystems(w.SimulationGroup()); err != nil {
				panic(err)
			}
			if err := w.Update(16 * time.Millisecond); err != nil {
				panic(err)
			}
		}
		w.Dispose()
	}
}
