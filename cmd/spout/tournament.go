package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-spout/internal/domain"
)

// maxLineSize bounds a single candidate line in an input file.
const maxLineSize = 1 << 20

func tournamentCmd(a *app) *cobra.Command {
	var (
		o     overrides
		input string
	)
	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Run the tournament over candidates read from a file",
		Long: `Reads one candidate per line, drops blanks and duplicates, and runs the
knockout tournament over the rest. Use "-" to read from stdin.`,
		Example: `  spout tournament --input output/phrase_factory/phrase_factory_results.txt
  cat names.txt | spout tournament --input - --criteria "memorable, short"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := loadCandidates(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			p, err := a.newPipeline(o.apply(cmd.Flags(), a.cfg))
			if err != nil {
				return err
			}
			sum, err := p.RunTournament(cmd.Context(), candidates)
			if sum != nil {
				if _, werr := sum.WriteTo(cmd.OutOrStdout()); werr != nil {
					return fmt.Errorf("write summary: %w", werr)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "newline-separated candidates file, or - for stdin")
	_ = cmd.MarkFlagRequired("input")
	o.bindTournament(cmd.Flags())
	return cmd
}

func loadCandidates(stdin io.Reader, path string) ([]domain.Candidate, error) {
	if path == "-" {
		return readCandidates(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return readCandidates(f)
}

// readCandidates returns one candidate per non-blank line, trimmed.
func readCandidates(r io.Reader) ([]domain.Candidate, error) {
	var out []domain.Candidate
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, domain.Candidate(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}
