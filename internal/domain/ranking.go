package domain

// FallbackExplanation is attached to every entry of a fallback ranking.
const FallbackExplanation = "Fallback due to evaluation error"

// Ranking is one judged entry of a batch.
type Ranking struct {
	// Rank is the judge-assigned position, 1 being best. Zero means the
	// judge omitted it.
	Rank int `json:"rank"`

	// Score is the judge-assigned score. Fallback entries score 0.
	Score float64 `json:"score"`

	// Candidate is the resolved candidate text. When the judge's reference
	// could not be mapped back to the batch it holds the raw reference.
	Candidate Candidate `json:"candidate"`

	// Explanation is the judge's justification, if any.
	Explanation string `json:"explanation,omitempty"`

	// Reference is the name the judge used for this entry ("Input 2", or a
	// literal substring of the candidate).
	Reference string `json:"reference,omitempty"`

	// Resolved is true when Reference was mapped to a member of the batch.
	Resolved bool `json:"resolved"`
}

// RankedResult is the outcome of judging one batch.
type RankedResult struct {
	// Entries are the rankings in the order the judge returned them.
	Entries []Ranking `json:"entries"`

	// Fallback is true when the entries were produced by FallbackRanking.
	Fallback bool `json:"fallback"`

	// Reason records why the fallback was used, when it was.
	Reason string `json:"reason,omitempty"`
}

// FallbackRanking returns the deterministic ranking used when judging fails:
// every candidate in submission order, rank = position, score 0.
func FallbackRanking(batch []Candidate, reason string) RankedResult {
	entries := make([]Ranking, 0, len(batch))
	for i, c := range batch {
		entries = append(entries, Ranking{
			Rank:        i + 1,
			Score:       0,
			Candidate:   c,
			Explanation: FallbackExplanation,
			Reference:   c.String(),
			Resolved:    true,
		})
	}
	return RankedResult{
		Entries:  entries,
		Fallback: true,
		Reason:   reason,
	}
}

// Winner returns the best-ranked entry that resolved to a batch member.
// Entries with a positive rank beat entries without one; ties keep the
// judge's order. Unresolved entries never win, so a winner is always a
// member of the judged batch. The second return value is false when no
// entry qualifies.
func (r RankedResult) Winner() (Ranking, bool) {
	best := -1
	for i, e := range r.Entries {
		if !e.Resolved || !e.Candidate.Admissible() {
			continue
		}
		if best == -1 || rankLess(e.Rank, r.Entries[best].Rank) {
			best = i
		}
	}
	if best == -1 {
		return Ranking{}, false
	}
	return r.Entries[best], true
}

// rankLess orders positive ranks ascending and places missing ranks last.
func rankLess(a, b int) bool {
	switch {
	case a > 0 && b > 0:
		return a < b
	case a > 0:
		return true
	default:
		return false
	}
}

// Len returns the number of entries.
func (r RankedResult) Len() int { return len(r.Entries) }
