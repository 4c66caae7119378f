package pipeline

// State is the orchestrator's position in the stage sequence. The happy
// path is PENDING through COMPLETED in order; DEGRADED and FAILED are the
// two other terminals.
type State string

const (
	StatePending      State = "PENDING"
	StateCapturing    State = "CAPTURING"
	StateScoring      State = "SCORING"
	StateSynthesizing State = "SYNTHESIZING"
	StateRendering    State = "RENDERING"
	StateCompleted    State = "COMPLETED"
	StateDegraded     State = "DEGRADED"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no further transition is legal from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDegraded || s == StateFailed
}

var nextState = map[State]State{
	StatePending:      StateCapturing,
	StateCapturing:    StateScoring,
	StateScoring:      StateSynthesizing,
	StateSynthesizing: StateRendering,
	StateRendering:    StateCompleted,
}

// CanTransition reports whether from may advance to to. Forward moves
// follow the fixed order; FAILED is reachable from any non-terminal
// state, DEGRADED only from RENDERING (the degradation decision is made
// once all stages have run).
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	if to == StateDegraded {
		return from == StateRendering
	}
	return nextState[from] == to
}

// RunStatus is the externally visible outcome of a run.
type RunStatus string

const (
	StatusOK       RunStatus = "ok"
	StatusDegraded RunStatus = "degraded"
	StatusFailed   RunStatus = "failed"
)

// Completeness grades how much evidence the capture stage produced.
type Completeness string

const (
	CompletenessSufficient   Completeness = "sufficient"
	CompletenessPartial      Completeness = "partial"
	CompletenessInsufficient Completeness = "insufficient"
)

var completenessRank = map[Completeness]int{
	CompletenessInsufficient: 0,
	CompletenessPartial:      1,
	CompletenessSufficient:   2,
}

// computeCompleteness grades a snapshot against the configured viewport
// set: sufficient needs facts plus a screenshot per viewport, partial
// needs facts or at least one screenshot, anything less is insufficient.
func computeCompleteness(snap *SnapshotVal, wantViewports int) Completeness {
	shots := 0
	for _, s := range snap.Shots {
		if s.Err == "" && s.Path != "" {
			shots++
		}
	}
	switch {
	case snap.FactsPresent && wantViewports > 0 && shots >= wantViewports:
		return CompletenessSufficient
	case snap.FactsPresent || shots > 0:
		return CompletenessPartial
	default:
		return CompletenessInsufficient
	}
}

// finalStatus aggregates worst-of over the ordered error list and the
// evidence completeness threshold. A run with zero errors still degrades
// when its evidence falls below the configured minimum.
func finalStatus(errs []StageError, got, min Completeness) RunStatus {
	if hasCritical(errs) || got == CompletenessInsufficient {
		return StatusFailed
	}
	if len(errs) > 0 || completenessRank[got] < completenessRank[min] {
		return StatusDegraded
	}
	return StatusOK
}

// alignmentLevel reports how well tickets reference real evidence: full
// when every ticket cites at least one known evidence ID, partial when
// some do, none otherwise.
func alignmentLevel(tickets []ticketRefs, known map[string]bool) string {
	if len(tickets) == 0 {
		return "none"
	}
	aligned := 0
	for _, t := range tickets {
		for _, id := range t.refs {
			if known[id] {
				aligned++
				break
			}
		}
	}
	switch aligned {
	case len(tickets):
		return "full"
	case 0:
		return "none"
	default:
		return "partial"
	}
}

type ticketRefs struct {
	refs []string
}
