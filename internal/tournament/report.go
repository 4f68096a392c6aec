package tournament

import (
	"fmt"
	"strconv"

	"github.com/ahrav/go-spout/internal/domain"
)

// The round record is plain text, one entry per line, written through a
// Recorder after every round.

func headerLines() []string {
	return []string{"# Tournament Results\n"}
}

func roundLines(r domain.Round) []string {
	lines := []string{fmt.Sprintf("\n## Round %d\n", r.Number)}

	for _, g := range r.Groups {
		switch {
		case !g.Judged:
			lines = append(lines, fmt.Sprintf("\nBatch %d (Advanced without judging):", g.Index))
		case g.Result.Fallback:
			lines = append(lines, fmt.Sprintf("\nBatch %d (Error fallback):", g.Index))
		default:
			lines = append(lines, fmt.Sprintf("\nBatch %d:", g.Index))
		}
		for _, e := range g.Result.Entries {
			lines = append(lines,
				fmt.Sprintf("\nRank %d (Score: %s)", e.Rank, strconv.FormatFloat(e.Score, 'f', -1, 64)),
				fmt.Sprintf("Text: %q", e.Candidate.String()),
			)
			if e.Explanation != "" {
				lines = append(lines, "Explanation: "+e.Explanation)
			}
		}
	}

	lines = append(lines,
		fmt.Sprintf("\nRound %d Summary:", r.Number),
		fmt.Sprintf("\nStarted with %d items", len(r.Entrants)),
		fmt.Sprintf("Processed %d batches in groups of %d", len(r.Groups), r.MaxConcurrent),
		fmt.Sprintf("Advanced %d winners to next round\n", len(r.Winners)),
	)
	return lines
}

func winnerLines(w domain.Candidate) []string {
	return []string{"\n## Final Winner\n", fmt.Sprintf("%q\n", w.String())}
}

func failureLines(err error) []string {
	return []string{"\n## Tournament Failed\n", err.Error() + "\n"}
}
