package application

import (
	"fmt"
	"io"

	"github.com/ahrav/go-spout/infrastructure/llm"
	"github.com/ahrav/go-spout/internal/generator"
	"github.com/ahrav/go-spout/internal/resultlog"
)

// StreamSummary describes one generation stream's output file.
type StreamSummary struct {
	Index      int
	Path       string
	Items      int
	Added      int
	StopReason generator.StopReason
}

// Completed reports whether the stream ran to a natural end.
func (s StreamSummary) Completed() bool { return s.StopReason.Completed() }

// Summary is the outcome of a pipeline run.
type Summary struct {
	RunID string
	Dir   string

	Interrupted       bool
	Streams           []StreamSummary
	TotalItems        int
	DuplicatesRemoved int
	UniqueCount       int
	ResultPath        string

	// Tournament fields are empty when no tournament ran.
	TournamentPath string
	Rounds         int
	Winner         string
	TournamentErr  error

	Usage llm.Usage
}

func newSummary(runID, dir, resultPath string, res generator.Result, logs []*resultlog.Log) *Summary {
	s := &Summary{
		RunID:             runID,
		Dir:               dir,
		Interrupted:       res.Interrupted,
		TotalItems:        res.TotalReturned,
		DuplicatesRemoved: res.DuplicatesRemoved,
		UniqueCount:       len(res.Pool),
		ResultPath:        resultPath,
		Streams:           make([]StreamSummary, len(res.Streams)),
	}
	for i, st := range res.Streams {
		s.Streams[i] = StreamSummary{
			Index:      st.Index + 1,
			Items:      len(st.Items),
			Added:      st.Added,
			StopReason: st.StopReason,
		}
		if i < len(logs) {
			s.Streams[i].Path = logs[i].Path()
		}
	}
	return s
}

// CompletedStreams counts streams that ran to a natural end.
func (s *Summary) CompletedStreams() int {
	n := 0
	for _, st := range s.Streams {
		if st.Completed() {
			n++
		}
	}
	return n
}

// WriteTo prints the human-readable report.
func (s *Summary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	if len(s.Streams) > 0 {
		cw.printf("\nGeneration complete!\n")
		if s.Interrupted {
			cw.printf("Process was interrupted!\n")
		}
		cw.printf("%d of %d variant sets completed\n", s.CompletedStreams(), len(s.Streams))
		cw.printf("Generated %d total items across all variants\n", s.TotalItems)
		cw.printf("Removed %d duplicates\n", s.DuplicatesRemoved)
		cw.printf("Final unique item count: %d\n", s.UniqueCount)
		cw.printf("\nOutput files:\n")
		cw.printf("Main output: %s\n", s.ResultPath)
		for _, st := range s.Streams {
			done := ""
			if st.Completed() {
				done = " - Completed"
			}
			cw.printf("Variant set %d: %s (%d items)%s\n", st.Index, st.Path, st.Items, done)
		}
	} else {
		cw.printf("\nLoaded %d items, %d unique\n", s.TotalItems, s.UniqueCount)
	}

	switch {
	case s.TournamentErr != nil:
		cw.printf("\nTournament failed: %v\n", s.TournamentErr)
		cw.printf("Tournament results saved to: %s\n", s.TournamentPath)
	case s.Winner != "":
		cw.printf("\nTournament complete after %d rounds!\n", s.Rounds)
		cw.printf("Winner: %q\n", s.Winner)
		cw.printf("Tournament results saved to: %s\n", s.TournamentPath)
	}

	if s.Usage.Calls > 0 {
		cw.printf("\nLLM usage: %d calls, %d tokens\n", s.Usage.Calls, s.Usage.Tokens)
	}
	cw.printf("Run %s\n", s.RunID)
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}
