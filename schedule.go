package keiro

import (
	"io"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
)

// Schedule is a TOML manifest that declares placement and ordering of system
// types as data:
//
//	[[system]]
//	name = "MoveSystem"
//	group = "FixedStepSimulationSystemGroup"
//	after = ["InputSystem"]
//	order_last = true
type Schedule struct {
	Systems []ScheduleEntry `toml:"system"`
}

// ScheduleEntry overrides the declaration of one registered system type.
// Before and After are merged into the registered constraints; flags left out
// of the manifest keep their registered value.
type ScheduleEntry struct {
	OrderFirst   *bool    `toml:"order_first"`
	OrderLast    *bool    `toml:"order_last"`
	AlwaysUpdate *bool    `toml:"always_update"`
	Name         string   `toml:"name"`
	Group        string   `toml:"group"`
	Before       []string `toml:"before"`
	After        []string `toml:"after"`
}

// LoadSchedule decodes a manifest file. Unknown keys are rejected.
func LoadSchedule(path string) (Schedule, error) {
	var s Schedule
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Schedule{}, eris.Wrapf(err, "decode schedule %s", path)
	}
	return s, checkUndecoded(md)
}

// ReadSchedule decodes a manifest from r.
func ReadSchedule(r io.Reader) (Schedule, error) {
	var s Schedule
	md, err := toml.NewDecoder(r).Decode(&s)
	if err != nil {
		return Schedule{}, eris.Wrap(err, "decode schedule")
	}
	return s, checkUndecoded(md)
}

func checkUndecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return configErr("unknown keys in schedule", names...)
}

// Apply validates every entry against the registry and then rewrites the
// registered declarations. Nothing is changed if any entry is invalid.
// Worlds pick up new ordering the next time the affected groups sort; a
// changed group only affects systems created afterwards.
func (s Schedule) Apply(r *SystemRegistry) error {
	for _, e := range s.Systems {
		if e.Name == "" {
			return configErr("schedule entry has no name")
		}
		if _, err := r.Lookup(e.Name); err != nil {
			return err
		}
		if e.Group != "" {
			g, err := r.Lookup(e.Group)
			if err != nil {
				return err
			}
			if !g.IsGroup {
				return configErr("declared group is not a group type", e.Name, e.Group)
			}
		}
		for _, target := range slices.Concat(e.Before, e.After) {
			if _, err := r.Lookup(target); err != nil {
				return err
			}
		}
	}
	for _, e := range s.Systems {
		r.update(e.Name, func(spec *SystemSpec) {
			if e.Group != "" && !spec.Root {
				spec.Group = e.Group
			}
			spec.Before = mergeNames(spec.Before, e.Before)
			spec.After = mergeNames(spec.After, e.After)
			if e.OrderFirst != nil {
				spec.OrderFirst = *e.OrderFirst
			}
			if e.OrderLast != nil {
				spec.OrderLast = *e.OrderLast
			}
			if e.AlwaysUpdate != nil {
				spec.AlwaysUpdate = *e.AlwaysUpdate
			}
		})
	}
	return nil
}

// String renders the schedule back to TOML.
func (s Schedule) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(s); err != nil {
		return err.Error()
	}
	return b.String()
}

func mergeNames(dst, add []string) []string {
	for _, n := range add {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}

// ApplySchedule applies s to the world's system registry and re-sorts every
// group before its next update.
func (w *World) ApplySchedule(s Schedule) error {
	if err := s.Apply(w.registry.Systems); err != nil {
		return err
	}
	for _, st := range w.systems {
		if st != nil && st.kind == kindGroup {
			st.dirty = true
		}
	}
	return nil
}
