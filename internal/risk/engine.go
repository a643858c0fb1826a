package risk

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownCategory is returned for findings outside the registry.
var ErrUnknownCategory = errors.New("unknown risk category")

// State is the lifecycle state of an Engine.
type State string

const (
	StateCollecting State = "COLLECTING"
	StateDecided    State = "DECIDED"
)

// Outcome is the fixed result of a decided evaluation.
type Outcome struct {
	EvaluationID string    `json:"evaluationId"`
	Findings     []Finding `json:"findings"`
	Decision     Decision  `json:"decision"`
}

// Engine accumulates the findings of a single evaluation and decides once
// every registered category has reported.
type Engine struct {
	mu           sync.Mutex
	evaluationID string
	findings     map[Category]Finding
	state        State
	outcome      Outcome
}

// NewEngine creates an engine in the COLLECTING state.
func NewEngine(evaluationID string) *Engine {
	return &Engine{
		evaluationID: evaluationID,
		findings:     make(map[Category]Finding, len(registry)),
		state:        StateCollecting,
	}
}

// EvaluationID returns the identifier the engine was created with.
func (e *Engine) EvaluationID() string {
	return e.evaluationID
}

// Record stores f, replacing an earlier finding for the same category.
// decided is true only for the call that completes coverage. Findings
// arriving after the decision are ignored.
func (e *Engine) Record(f Finding) (outcome Outcome, decided bool, err error) {
	if !f.Category.IsValid() {
		return Outcome{}, false, fmt.Errorf("%w: %q", ErrUnknownCategory, f.Category)
	}
	if !f.Severity.IsValid() {
		f.Severity = SeverityUnknown
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateDecided {
		return e.outcome, false, nil
	}

	e.findings[f.Category] = f
	if len(e.findings) < len(registry) {
		return Outcome{}, false, nil
	}

	ordered := make([]Finding, 0, len(registry))
	for _, c := range registry {
		ordered = append(ordered, e.findings[c])
	}
	e.outcome = Outcome{
		EvaluationID: e.evaluationID,
		Findings:     ordered,
		Decision:     Decide(ordered),
	}
	e.state = StateDecided
	return e.outcome, true, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reported returns how many distinct categories have reported.
func (e *Engine) Reported() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.findings)
}

// Outcome returns the decision once DECIDED. ok is false while collecting.
func (e *Engine) Outcome() (Outcome, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome, e.state == StateDecided
}
