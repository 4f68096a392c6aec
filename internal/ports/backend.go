package ports

import "context"

// GenerateRequest asks the generation backend for a batch of new items.
type GenerateRequest struct {
	Description      string
	Example          string
	BatchSize        int
	AlreadyGenerated []string
}

// MutateRequest asks the mutation backend for variants of Input.
// Level is the mutation intensity, 1 (light) through 5 (heavy).
type MutateRequest struct {
	Input    string
	Variants int
	Level    int
}

// JudgeRequest asks the judging backend to rank Count candidates that have
// been joined into CombinedInputs with Separator.
type JudgeRequest struct {
	CombinedInputs string
	Separator      string
	Criteria       string
	Explanation    bool
	Count          int
}

// GenerationBackend produces new candidate items. The returned text is the
// raw backend reply; it is expected to decode to {"generated_items": [...]}
// possibly wrapped in formatting.
type GenerationBackend interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// MutationBackend rewrites an input text into variants. The reply is
// expected to decode to {"variants": [...]}.
type MutationBackend interface {
	Mutate(ctx context.Context, req MutateRequest) (string, error)
}

// JudgeBackend ranks a batch of candidates. The reply is expected to decode
// to {"Rankings": [{"Name", "Rank", "Score", "Explanation"}]}.
type JudgeBackend interface {
	Judge(ctx context.Context, req JudgeRequest) (string, error)
}
