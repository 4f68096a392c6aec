package generator

import (
	"context"
	"log/slog"

	"github.com/ahrav/go-spout/internal/parser"
	"github.com/ahrav/go-spout/internal/ports"
)

// Seed is the description and example driving one generation stream.
type Seed struct {
	Description string
	Example     string
}

// ExpandSeeds mutates description and example into n variants each and
// pairs them into n seeds. Stream i uses description variant i and example
// variant i, falling back to the original text when the mutation backend
// returned fewer variants or failed.
func ExpandSeeds(
	ctx context.Context,
	backend ports.MutationBackend,
	description, example string,
	n, level int,
	logger *slog.Logger,
) []Seed {
	if logger == nil {
		logger = slog.Default()
	}
	if n < 1 {
		n = 1
	}

	descs := mutate(ctx, backend, description, n, level, logger)
	examples := mutate(ctx, backend, example, n, level, logger)

	seeds := make([]Seed, n)
	for i := range seeds {
		seeds[i] = Seed{Description: description, Example: example}
		if i < len(descs) {
			seeds[i].Description = descs[i]
		}
		if i < len(examples) {
			seeds[i].Example = examples[i]
		}
	}
	return seeds
}

// mutate returns the cleaned variants of text, or just text on any failure.
func mutate(ctx context.Context, backend ports.MutationBackend, text string, n, level int, logger *slog.Logger) []string {
	if backend == nil {
		return []string{text}
	}

	reply, err := backend.Mutate(ctx, ports.MutateRequest{Input: text, Variants: n, Level: level})
	if err != nil {
		logger.Warn("generator: mutation failed, using input text", "error", err)
		return []string{text}
	}

	parsed, err := parser.ParseVariants(reply)
	if err != nil {
		logger.Warn("generator: unparseable variants, using input text", "error", err)
		return []string{text}
	}

	out := make([]string, 0, len(parsed.Variants))
	for _, v := range parsed.Variants {
		if v = cleanVariant(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}
