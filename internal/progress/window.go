package progress

import (
	"fmt"

	"github.com/stemforge/api/internal/model"
)

// Window is the [Start,End) slice of the overall 0-100 range one phase
// reports into. A zero-width window marks a phase the kind skips.
type Window struct {
	Start int
	End   int
}

// Width returns End - Start.
func (w Window) Width() int {
	return w.End - w.Start
}

// Plan maps each pipeline phase of one job kind to its window, in
// execution order.
type Plan struct {
	Phases  []model.JobPhase
	Windows map[model.JobPhase]Window
}

// Window returns the window for a phase. Phases outside the plan get a
// zero-width window at 100.
func (p Plan) Window(phase model.JobPhase) Window {
	if w, ok := p.Windows[phase]; ok {
		return w
	}
	return Window{Start: 100, End: 100}
}

// Validate checks that the plan's windows are ordered, contiguous, and
// jointly cover exactly [0,100].
func (p Plan) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}
	cursor := 0
	for _, phase := range p.Phases {
		w, ok := p.Windows[phase]
		if !ok {
			return fmt.Errorf("phase %s has no window", phase)
		}
		if w.Start != cursor {
			return fmt.Errorf("phase %s starts at %d, want %d", phase, w.Start, cursor)
		}
		if w.End < w.Start {
			return fmt.Errorf("phase %s window is inverted [%d,%d)", phase, w.Start, w.End)
		}
		cursor = w.End
	}
	if cursor != 100 {
		return fmt.Errorf("windows cover [0,%d], want [0,100]", cursor)
	}
	return nil
}

// PlanFor returns the phase plan for a job kind.
func PlanFor(kind model.JobKind) Plan {
	switch kind {
	case model.JobKindProcessOnly:
		return Plan{
			Phases: []model.JobPhase{
				model.JobPhaseTransforming,
				model.JobPhaseFinalizing,
			},
			Windows: map[model.JobPhase]Window{
				model.JobPhaseTransforming: {Start: 0, End: 90},
				model.JobPhaseFinalizing:   {Start: 90, End: 100},
			},
		}
	default:
		return Plan{
			Phases: []model.JobPhase{
				model.JobPhaseImporting,
				model.JobPhaseTransforming,
				model.JobPhaseFinalizing,
			},
			Windows: map[model.JobPhase]Window{
				model.JobPhaseImporting:    {Start: 0, End: 30},
				model.JobPhaseTransforming: {Start: 30, End: 90},
				model.JobPhaseFinalizing:   {Start: 90, End: 100},
			},
		}
	}
}
