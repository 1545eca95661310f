// Profiling:
// go build ./profile/playback
// go tool pprof -http=":8000" -nodefraction=0.001 ./playback mem.pprof

package main

import (
	"io"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"

	"github.com/edwinsyarief/keiro"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	count := 50
	iters := 1000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		w, err := keiro.NewWorld("profile", keiro.WithLogger(zerolog.New(io.Discard)))
		if err != nil {
			panic(err)
		}
		reg := w.Registry().Components
		arch := keiro.NewArchetype(keiro.ComponentID[comp1](reg), keiro.ComponentID[comp2](reg))

		for range iters {
			cb := w.NewCommandBuffer()
			for range numEntities {
				if _, err := cb.CreateEntity(arch); err != nil {
					panic(err)
				}
			}
			if err := w.Playback(cb); err != nil {
				panic(err)
			}

			var entities []keiro.Entity
			w.Store().Each(func(e keiro.Entity) { entities = append(entities, e) })
			cb = w.NewCommandBuffer()
			for _, e := range entities {
				c1, _ := keiro.GetComponent[comp1](w.Store(), e)
				c2, _ := keiro.GetComponent[comp2](w.Store(), e)
				c1.V += c2.V
				c1.W += c2.W
				if err := cb.DestroyEntity(e); err != nil {
					panic(err)
				}
			}
			if err := w.Playback(cb); err != nil {
				panic(err)
			}
		}
		w.Dispose()
	}
}
