package domain

import (
	"errors"
	"fmt"
)

// TournamentStatus is the state of the elimination state machine.
type TournamentStatus int

const (
	// StatusRunning means more rounds are needed.
	StatusRunning TournamentStatus = iota
	// StatusDone means a single winner remains.
	StatusDone
	// StatusFailed means a round advanced no winners.
	StatusFailed
)

// String returns the lowercase status name.
func (s TournamentStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Group is one consecutive slice of a round's survivors.
type Group struct {
	// Index is the 1-based position of the group within its round.
	Index int

	// Members are the candidates in submission order.
	Members []Candidate

	// Result holds the judged ranking. For a singleton it is a one-entry
	// ranking of the lone member.
	Result RankedResult

	// Judged is false when the group advanced without a judge call.
	Judged bool
}

// Winner returns the group's advancing candidate.
func (g Group) Winner() (Candidate, bool) {
	w, ok := g.Result.Winner()
	if !ok {
		return "", false
	}
	return w.Candidate, true
}

// Round records one full pass over the survivors.
type Round struct {
	// Number is the 1-based round number.
	Number int

	// Entrants are the survivors that entered this round.
	Entrants []Candidate

	// Groups are the partitions, in submission order.
	Groups []Group

	// MaxConcurrent is the number of groups judged simultaneously.
	MaxConcurrent int

	// Winners are the advancing candidates, in group order.
	Winners []Candidate
}

// JudgedGroups returns how many groups required a judge call.
func (r Round) JudgedGroups() int {
	n := 0
	for _, g := range r.Groups {
		if g.Judged {
			n++
		}
	}
	return n
}

// CollectWinners fills Winners from the groups in group order.
func (r *Round) CollectWinners() {
	r.Winners = r.Winners[:0]
	for _, g := range r.Groups {
		if w, ok := g.Winner(); ok {
			r.Winners = append(r.Winners, w)
		}
	}
}

// TournamentState is the survivor set plus the completed-round log.
// Only Advance mutates it.
type TournamentState struct {
	Status    TournamentStatus
	Survivors []Candidate
	Round     int
	Rounds    []Round
	Winner    Candidate
	Err       error
}

// NewTournamentState validates the starting pool and builds the initial
// state. Inadmissible and duplicate entries are dropped first; an empty
// result is an input-validation error. A single survivor is Done at once.
func NewTournamentState(pool []Candidate) (*TournamentState, error) {
	survivors := Dedupe(pool)
	if len(survivors) == 0 {
		return nil, ErrEmptyPool
	}

	s := &TournamentState{
		Status:    StatusRunning,
		Survivors: survivors,
		Round:     1,
	}
	if len(survivors) == 1 {
		s.Status = StatusDone
		s.Winner = survivors[0]
	}
	return s, nil
}

// ErrNotRunning is returned by Advance once the tournament is terminal.
var ErrNotRunning = errors.New("tournament is not running")

// Advance applies a completed round. With no winners the state becomes
// Failed and a TournamentExhaustionError is returned; with one winner it
// becomes Done; otherwise the winners become the next round's survivors.
func (s *TournamentState) Advance(r Round) error {
	if s.Status != StatusRunning {
		return ErrNotRunning
	}
	if r.Number != s.Round {
		return fmt.Errorf("advance round %d: state is at round %d", r.Number, s.Round)
	}

	s.Rounds = append(s.Rounds, r)

	switch len(r.Winners) {
	case 0:
		s.Status = StatusFailed
		s.Survivors = nil
		s.Err = NewTournamentExhaustionError(r.Number, len(r.Entrants), len(r.Groups))
		return s.Err
	case 1:
		s.Status = StatusDone
		s.Survivors = []Candidate{r.Winners[0]}
		s.Winner = r.Winners[0]
	default:
		s.Survivors = append([]Candidate(nil), r.Winners...)
		s.Round++
	}
	return nil
}

// Partition splits survivors into consecutive groups of size, the last of
// which may be smaller.
func Partition(survivors []Candidate, size int) [][]Candidate {
	if size < 1 {
		size = 1
	}
	groups := make([][]Candidate, 0, (len(survivors)+size-1)/size)
	for start := 0; start < len(survivors); start += size {
		end := min(start+size, len(survivors))
		groups = append(groups, survivors[start:end:end])
	}
	return groups
}
