package main

import (
	"github.com/spf13/pflag"

	"github.com/ahrav/go-spout/internal/application"
)

// overrides holds command-line values that replace config file settings.
// Only flags the user actually set are applied.
type overrides struct {
	description   string
	example       string
	maxItems      int
	batchSize     int
	numVariants   int
	maxThreads    int
	mutationLevel int

	outputDir           string
	noTournament        bool
	tournamentBatchSize int
	criteria            string

	model         string
	generateModel string
	mutateModel   string
	judgeModel    string
}

func (o *overrides) bindGeneration(fs *pflag.FlagSet) {
	fs.StringVarP(&o.description, "description", "d", "", "what to generate, e.g. \"taglines for a coffee brand\"")
	fs.StringVarP(&o.example, "example", "e", "", "an example item")
	fs.IntVarP(&o.maxItems, "max-items", "n", 0, "target number of unique items")
	fs.IntVar(&o.batchSize, "batch-size", 0, "items requested per generation call")
	fs.IntVar(&o.numVariants, "num-variants", 0, "number of generation streams")
	fs.IntVar(&o.mutationLevel, "mutation-level", 0, "how far variants drift from the brief (1-5)")
	fs.BoolVar(&o.noTournament, "no-tournament", false, "skip the tournament")
	fs.StringVar(&o.model, "model", "", "provider/model for every role")
	fs.StringVar(&o.generateModel, "generate-model", "", "provider/model for generation")
	fs.StringVar(&o.mutateModel, "mutate-model", "", "provider/model for variant mutation")
}

func (o *overrides) bindTournament(fs *pflag.FlagSet) {
	fs.IntVar(&o.maxThreads, "max-threads", 0, "maximum concurrent streams and judge calls")
	fs.StringVarP(&o.outputDir, "output-dir", "o", "", "output directory (a free suffix is chosen if it exists)")
	fs.IntVar(&o.tournamentBatchSize, "tournament-batch-size", 0, "candidates judged per group")
	fs.StringVar(&o.criteria, "criteria", "", "judging criteria")
	fs.StringVar(&o.judgeModel, "judge-model", "", "provider/model for judging")
}

// apply returns cfg with every changed flag in fs applied. --model is
// applied before the per-role model flags so they can refine it.
func (o *overrides) apply(fs *pflag.FlagSet, cfg application.Config) application.Config {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}

	set("description", func() { cfg.Generation.Description = o.description })
	set("example", func() { cfg.Generation.Example = o.example })
	set("max-items", func() { cfg.Generation.MaxItems = o.maxItems })
	set("batch-size", func() { cfg.Generation.BatchSize = o.batchSize })
	set("num-variants", func() { cfg.Generation.NumVariants = o.numVariants })
	set("max-threads", func() { cfg.Generation.MaxThreads = o.maxThreads })
	set("mutation-level", func() { cfg.Generation.MutationLevel = o.mutationLevel })

	set("output-dir", func() { cfg.Output.Dir = o.outputDir })
	set("no-tournament", func() { cfg.Tournament.Enabled = !o.noTournament })
	set("tournament-batch-size", func() { cfg.Tournament.BatchSize = o.tournamentBatchSize })
	set("criteria", func() { cfg.Tournament.Criteria = o.criteria })

	set("model", func() {
		cfg.Models.Generate = o.model
		cfg.Models.Mutate = o.model
		cfg.Models.Judge = o.model
	})
	set("generate-model", func() { cfg.Models.Generate = o.generateModel })
	set("mutate-model", func() { cfg.Models.Mutate = o.mutateModel })
	set("judge-model", func() { cfg.Models.Judge = o.judgeModel })
	return cfg
}
