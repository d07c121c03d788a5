package build

import (
	"fmt"
	"time"

	"github.com/openafpm/cadstream/internal/cache"
)

// stage is one named phase of simulated work.
type stage struct {
	message string
	percent int
	work    time.Duration
}

// stageTick bounds how often a stage's simulated work checks the cancel
// token, so cancellation latency stays well under a stage's total duration.
const stageTick = 20 * time.Millisecond

// runStages drives a worker through stages, calling report after each and
// checking cancel between every tick of simulated work. It returns
// cache.ErrWorkerCancelled the moment cancel is set.
func runStages(stages []stage, report func(message string, percent int), cancel *cache.CancelToken) error {
	for _, s := range stages {
		remaining := s.work
		for remaining > 0 {
			if cancel.Cancelled() {
				return cache.ErrWorkerCancelled
			}
			tick := stageTick
			if tick > remaining {
				tick = remaining
			}
			time.Sleep(tick)
			remaining -= tick
		}
		if cancel.Cancelled() {
			return cache.ErrWorkerCancelled
		}
		report(s.message, s.percent)
	}
	return nil
}

// Visualize returns a cache.Worker that simulates building the assembly's
// 3D preview from its parameter groups.
func Visualize(p Params) cache.Worker {
	return func(report func(string, int), cancel *cache.CancelToken) (any, error) {
		stages := []stage{
			{"loading parameters", 20, 40 * time.Millisecond},
			{"building assembly", 60, 80 * time.Millisecond},
			{"rendering preview", 100, 40 * time.Millisecond},
		}
		if err := runStages(stages, report, cancel); err != nil {
			return nil, err
		}

		rotorDiameter := numeric(p.Magnafpm, "rotor_diameter", 1200)
		tailLength := numeric(p.Furling, "tail_hinge_forward", 300)

		return VisualizeResult{
			Assembly: p.Assembly,
			Parts:    []string{"rotor", "stator", "tail_vane", "frame"},
			Bounds: Bounds{
				X: rotorDiameter * 1.1,
				Y: rotorDiameter * 1.1,
				Z: tailLength * 2,
			},
		}, nil
	}
}

// CNCOverview returns a cache.Worker that simulates the CNC cut-profile
// overview for the assembly.
func CNCOverview(p Params) cache.Worker {
	return func(report func(string, int), cancel *cache.CancelToken) (any, error) {
		stages := []stage{
			{"loading parameters", 25, 30 * time.Millisecond},
			{"deriving flat patterns", 70, 70 * time.Millisecond},
			{"laying out cuts", 100, 30 * time.Millisecond},
		}
		if err := runStages(stages, report, cancel); err != nil {
			return nil, err
		}

		rotorDiameter := numeric(p.Magnafpm, "rotor_diameter", 1200)
		return CNCOverviewResult{
			Profiles: []CutProfile{
				{Name: "stator_mold", WidthMM: rotorDiameter * 0.9, HeightMM: rotorDiameter * 0.9, CountHint: 1},
				{Name: "rotor_disc", WidthMM: rotorDiameter, HeightMM: rotorDiameter, CountHint: 2},
				{Name: "tail_vane", WidthMM: numeric(p.Furling, "vane_width", 500), HeightMM: numeric(p.Furling, "vane_height", 600), CountHint: 1},
			},
		}, nil
	}
}

// DimensionTables returns a cache.Worker that simulates the dimension
// table export for the assembly.
func DimensionTables(p Params) cache.Worker {
	return func(report func(string, int), cancel *cache.CancelToken) (any, error) {
		stages := []stage{
			{"loading parameters", 30, 20 * time.Millisecond},
			{"computing dimensions", 100, 60 * time.Millisecond},
		}
		if err := runStages(stages, report, cancel); err != nil {
			return nil, err
		}

		rotorDiameter := numeric(p.Magnafpm, "rotor_diameter", 1200)
		numMagnets := numeric(p.Magnafpm, "num_magnets", 12)
		return DimensionTablesResult{
			Tables: []DimensionTable{
				{
					Name: "rotor",
					Rows: []DimensionRow{
						{Label: "diameter", ValueMM: rotorDiameter},
						{Label: fmt.Sprintf("magnet_count_%d", int64(numMagnets)), ValueMM: numMagnets},
					},
				},
			},
		}, nil
	}
}
