package orchestrator

import (
	"time"

	"github.com/valpere/reclone/internal/scoring"
)

// Candidate is one generated and scored attempt.
type Candidate struct {
	Iteration   int            `json:"iteration"`
	Raw         string         `json:"-"`
	Markup      string         `json:"-"`
	Scores      scoring.Scores `json:"scores"`
	Combined    float64        `json:"combined"`
	Regressed   bool           `json:"regressed,omitempty"`
	RenderError string         `json:"render_error,omitempty"`
	Minor       bool           `json:"minor_refinement,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// Ledger is the ordered record of one session's candidates and its
// best-so-far pointer. It is owned by a single Clone call.
type Ledger struct {
	Candidates []Candidate `json:"candidates"`
	best       int
}

func newLedger() *Ledger {
	return &Ledger{best: -1}
}

func (l *Ledger) add(c Candidate) int {
	l.Candidates = append(l.Candidates, c)
	return len(l.Candidates) - 1
}

// offer makes candidate i the best-so-far when it beats the current best.
// Regressed candidates are never eligible.
func (l *Ledger) offer(i int) bool {
	c := l.Candidates[i]
	if c.Regressed {
		return false
	}
	if l.best >= 0 && c.Combined <= l.Candidates[l.best].Combined {
		return false
	}
	l.best = i
	return true
}

// Best returns the best-so-far candidate.
func (l *Ledger) Best() (Candidate, bool) {
	if l == nil || l.best < 0 {
		return Candidate{}, false
	}
	return l.Candidates[l.best], true
}

// Len returns the number of scored candidates.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Candidates)
}
