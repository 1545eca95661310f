package keiro

import (
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type timeRecorder struct{ seen []TimeData }

func (r *timeRecorder) OnUpdate(ctx *SystemContext) error {
	r.seen = append(r.seen, ctx.Time())
	return nil
}

func rateWorld(t *testing.T, rate func(Config) RateManager) (*World, *timeRecorder) {
	t.Helper()
	c := NewRegistryContext(nil)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	rec := &timeRecorder{}
	specs := []SystemSpec{
		{Name: "Paced", IsGroup: true, Rate: rate},
		{Name: "Recorder", Group: "Paced", Factory: func() System { return rec }},
	}
	for _, s := range specs {
		if _, err := c.Systems.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	w, err := NewWorld("rate", WithRegistry(c), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Dispose)
	if _, err := w.CreateSystem("Recorder"); err != nil {
		t.Fatal(err)
	}
	return w, rec
}

// go test -run ^TestVariableRateManager$ . -count 1
func TestVariableRateManager(t *testing.T) {
	w, rec := rateWorld(t, func(Config) RateManager { return NewVariableRateManager(50 * time.Millisecond) })
	for range 5 {
		if err := w.Update(20 * time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	want := []TimeData{
		{Elapsed: 20 * time.Millisecond, Delta: 20 * time.Millisecond},
		{Elapsed: 80 * time.Millisecond, Delta: 60 * time.Millisecond},
	}
	if !slices.Equal(rec.seen, want) {
		t.Errorf("expected %v, got %v", want, rec.seen)
	}
	if w.Time().Elapsed != 100*time.Millisecond {
		t.Errorf("expected world time to be restored, got %s", w.Time().Elapsed)
	}
}

// go test -run ^TestFixedRateCatchUpManager$ . -count 1
func TestFixedRateCatchUpManager(t *testing.T) {
	m := NewFixedRateCatchUpManager(0, 0)
	if m.Timestep() != DefaultFixedTimestep {
		t.Errorf("expected a non-positive step to fall back to the default, got %s", m.Timestep())
	}

	w, rec := rateWorld(t, func(Config) RateManager { return m })
	m.SetTimestep(5 * time.Millisecond)
	if err := w.Update(12 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(rec.seen) != 3 || m.Updates() != 3 {
		t.Fatalf("expected 3 passes, got %d", len(rec.seen))
	}
	if rec.seen[2].Elapsed != 10*time.Millisecond {
		t.Errorf("expected the last pass at 10ms, got %s", rec.seen[2].Elapsed)
	}

	t.Run("SwappedAtRuntime", func(t *testing.T) {
		paced, _ := w.SystemByName("Paced")
		if w.RateManager(paced) != RateManager(m) {
			t.Fatal("expected the declared manager")
		}
		if err := w.SetRateManager(paced, nil); err != nil {
			t.Fatal(err)
		}
		rec.seen = nil
		if err := w.Update(100 * time.Millisecond); err != nil {
			t.Fatal(err)
		}
		if len(rec.seen) != 1 || rec.seen[0].Delta != 100*time.Millisecond {
			t.Errorf("expected one pass with the frame delta, got %v", rec.seen)
		}
	})
}
