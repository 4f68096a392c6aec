package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-spout/infrastructure/llm"
	"github.com/ahrav/go-spout/internal/domain"
	"github.com/ahrav/go-spout/internal/generator"
	"github.com/ahrav/go-spout/internal/judge"
	"github.com/ahrav/go-spout/internal/ports"
)

// Config is the complete run configuration for a factory or tournament run.
// It is loaded from YAML, overlaid on DefaultConfig, and then adjusted by
// command-line flags.
type Config struct {
	// Generation controls seed expansion and the generation streams.
	Generation GenerationConfig `yaml:"generation"`
	// Tournament controls the judged elimination over the generated pool.
	Tournament TournamentConfig `yaml:"tournament"`
	// Models names the provider/model used for each operation.
	Models ModelsConfig `yaml:"models"`
	// LLM configures the resilience middleware wrapped around every client.
	LLM LLMConfig `yaml:"llm"`
	// Output names the run directory and the files written into it.
	Output OutputConfig `yaml:"output"`
	// Prompts overrides the built-in prompt templates by name
	// ("generate", "mutate", "judge").
	Prompts map[string]string `yaml:"prompts,omitempty" validate:"omitempty,dive,keys,oneof=generate mutate judge,endkeys,required"`
}

// GenerationConfig controls how candidates are produced.
type GenerationConfig struct {
	// Description is the base description of the items to generate.
	Description string `yaml:"description"`
	// Example is a sample item shown to the generator.
	Example string `yaml:"example"`
	// MaxItems is the pool size at which every stream stops.
	MaxItems int `yaml:"max_items" validate:"min=1,max=100000"`
	// BatchSize is the number of items requested per generation call.
	BatchSize int `yaml:"batch_size" validate:"min=1,max=200"`
	// NumVariants is the number of description/example variant pairs, and
	// so the number of generation streams.
	NumVariants int `yaml:"num_variants" validate:"min=1,max=100"`
	// MaxThreads bounds how many streams, and how many tournament groups,
	// run at once.
	MaxThreads int `yaml:"max_threads" validate:"min=1,max=64"`
	// MutationLevel is how far seed variants drift from the originals.
	MutationLevel int `yaml:"mutation_level" validate:"min=1,max=5"`
	// AlreadyGenLimit caps the serialised already-generated list sent with
	// each request, in characters.
	AlreadyGenLimit int `yaml:"already_gen_limit" validate:"min=0"`
	// MaxStaleBatches stops a stream after this many consecutive batches
	// added nothing new. Zero disables the guard.
	MaxStaleBatches int `yaml:"max_stale_batches" validate:"min=0"`
}

// TournamentConfig controls the judged elimination.
type TournamentConfig struct {
	Enabled bool `yaml:"enabled"`
	// BatchSize is the number of candidates judged together.
	BatchSize int `yaml:"batch_size" validate:"min=2,max=20"`
	// Criteria is passed verbatim to the judge.
	Criteria string `yaml:"criteria" validate:"required,max=1000"`
	// FuzzyMatchThreshold is the minimum similarity for resolving a judge
	// reference that is neither "Input N" nor a substring of a candidate.
	FuzzyMatchThreshold float64 `yaml:"fuzzy_match_threshold" validate:"min=0,max=1"`
}

// ModelsConfig names a "provider/model" for each operation.
type ModelsConfig struct {
	Generate string `yaml:"generate" validate:"required,modelformat"`
	Mutate   string `yaml:"mutate" validate:"required,modelformat"`
	Judge    string `yaml:"judge" validate:"required,modelformat"`
}

// LLMConfig configures the middleware chain around provider clients.
type LLMConfig struct {
	// Timeout bounds each provider HTTP request. Zero keeps the SDK default.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// RequestTimeout bounds each attempt through the middleware chain.
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`
	// RateLimit is the sustained requests per second per provider. Zero
	// disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	// Burst is the token bucket size; it is raised to 1 when rate limiting
	// is on.
	Burst int `yaml:"burst" validate:"min=0"`

	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Budget         llm.Budget           `yaml:"budget"`

	// Options are extra per-skill request options, such as temperature.
	Options map[string]map[string]any `yaml:"options,omitempty" validate:"omitempty,dive,keys,oneof=generate mutate judge,endkeys"`
}

// RetryConfig mirrors llm.RetryConfig in YAML form.
type RetryConfig struct {
	// MaxAttempts includes the first attempt; 1 disables retries.
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"min=0,gtefield=BaseDelay"`
}

// CircuitBreakerConfig configures the per-provider breaker.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open the breaker. Zero disables it.
	MaxFailures int           `yaml:"max_failures" validate:"min=0"`
	Cooldown    time.Duration `yaml:"cooldown" validate:"min=0"`
}

// OutputConfig names the run artifacts.
type OutputConfig struct {
	// Dir is the base run directory; when it already holds files the run
	// uses the first free Dir_N instead.
	Dir string `yaml:"dir" validate:"required"`
	// ResultFile receives the deduplicated pool.
	ResultFile string `yaml:"result_file" validate:"required,excludesall=/\\"`
	// VariantPattern names each stream's file; it must contain one %d.
	VariantPattern string `yaml:"variant_pattern" validate:"required,variantpattern"`
	// TournamentFile receives the round-by-round record.
	TournamentFile string `yaml:"tournament_file" validate:"required,excludesall=/\\"`
	// UsageLog is the per-call CSV. Empty disables it; a relative path is
	// resolved against the run directory.
	UsageLog string `yaml:"usage_log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	retry := llm.DefaultRetryConfig()
	return Config{
		Generation: GenerationConfig{
			MaxItems:        30,
			BatchSize:       5,
			NumVariants:     1,
			MaxThreads:      3,
			MutationLevel:   1,
			AlreadyGenLimit: generator.DefaultContextLimit,
			MaxStaleBatches: generator.DefaultMaxStaleBatches,
		},
		Tournament: TournamentConfig{
			Enabled:             true,
			BatchSize:           4,
			Criteria:            "originality, coolness, appropriateness",
			FuzzyMatchThreshold: judge.DefaultFuzzyThreshold,
		},
		Models: ModelsConfig{
			Generate: "openai/" + llm.OpenAIDefaultModel,
			Mutate:   "openai/" + llm.OpenAIDefaultModel,
			Judge:    "openai/" + llm.OpenAIDefaultModel,
		},
		LLM: LLMConfig{
			Timeout:        2 * time.Minute,
			RequestTimeout: 90 * time.Second,
			RateLimit:      5,
			Burst:          5,
			Retry: RetryConfig{
				MaxAttempts: retry.MaxAttempts,
				BaseDelay:   retry.BaseDelay,
				MaxDelay:    retry.MaxDelay,
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Cooldown:    30 * time.Second,
			},
		},
		Output: OutputConfig{
			Dir:            filepath.Join("output", "phrase_factory"),
			ResultFile:     "phrase_factory_results.txt",
			VariantPattern: "phrase_factory_variant_%d.txt",
			TournamentFile: "tournament_results.txt",
			UsageLog:       "api_metrics.csv",
		},
	}
}

// LoadConfig reads path and overlays it on DefaultConfig. Unknown keys are
// rejected. The result is validated.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return Config{}, ports.NewConfigError(path, err)
	}
	defer f.Close()

	return LoadConfigFromReader(f)
}

// LoadConfigFromReader is LoadConfig for an arbitrary reader.
func LoadConfigFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("YAML decode failed: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field constraint. Failures are reported together
// as a *domain.ValidationError.
func (c Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return err
	}

	verr := domain.NewValidationError("Config")
	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("struct validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.AddError(describeFieldError(fe))
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Normalize resolves settings that depend on each other. More variants than
// threads are reduced to the thread count.
func (c Config) Normalize(logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Generation.NumVariants > c.Generation.MaxThreads {
		logger.Warn("config: num_variants exceeds max_threads, reducing",
			"num_variants", c.Generation.NumVariants,
			"max_threads", c.Generation.MaxThreads)
		c.Generation.NumVariants = c.Generation.MaxThreads
	}
	if c.LLM.RateLimit > 0 && c.LLM.Burst < 1 {
		c.LLM.Burst = 1
	}
	return c
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// describeFieldError renders a validator failure using YAML key paths.
func describeFieldError(fe validator.FieldError) string {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (got %v)", path, fe.Tag(), fe.Value())
}
