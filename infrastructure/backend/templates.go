package backend

import (
	"encoding/json"
	"strings"
	"text/template"
)

// Template names.
const (
	TemplateGenerate = "generate"
	TemplateMutate   = "mutate"
	TemplateJudge    = "judge"
)

const generatePrompt = `You are a creative generator. Produce {{.BatchSize}} new items that match the description below.

Description: {{.Description}}
{{- if .Example}}
Example of the kind of item wanted: {{.Example}}
{{- end}}
{{- if .AlreadyGenerated}}

These items already exist. Do not repeat them or produce trivial rewordings of them:
{{json .AlreadyGenerated}}
{{- end}}

Respond with only a JSON object of the form {"generated_items": ["item one", "item two"]}.
Each item is a single line of plain text.`

const mutatePrompt = `Rewrite the text below into {{.Variants}} distinct variants.
Mutation level {{.Level}} of 5: {{intensity .Level}}
Keep the intent of the original text.

Text: {{.Input}}

Respond with only a JSON object of the form {"variants": ["variant one", "variant two"]}.`

const judgePrompt = `You are judging {{.Count}} candidate inputs against these criteria: {{.Criteria}}.

The inputs are separated by "{{.Separator}}". Refer to each input as "Input N", where N is its 1-based position.

Inputs:
{{range $i, $c := split .CombinedInputs .Separator}}Input {{add $i 1}}: {{trim $c}}
{{end}}
Rank every input exactly once, best first. Rank 1 is the best; Score is 0 to 10.
Respond with only a JSON object of the form
{"Rankings": [{"Name": "Input 1", "Rank": 1, "Score": 9{{if .Explanation}}, "Explanation": "why"{{end}}}]}`

// funcMap is shared by every prompt template.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"add":   func(a, b int) int { return a + b },
		"trim":  strings.TrimSpace,
		"split": strings.Split,
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		"intensity": mutationIntensity,
	}
}

// mutationIntensity describes how far a variant may drift from its input.
func mutationIntensity(level int) string {
	switch {
	case level <= 1:
		return "light rewording; change a few words."
	case level == 2:
		return "moderate rewording; vary phrasing and structure."
	case level == 3:
		return "noticeable changes; vary tone and emphasis."
	case level == 4:
		return "strong changes; reinterpret freely while keeping the subject."
	default:
		return "radical changes; only the core idea must survive."
	}
}

// Templates holds the parsed prompt templates.
type Templates struct {
	t *template.Template
}

// DefaultTemplates parses the built-in prompts.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(nil)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTemplates parses custom prompts. Names missing from sources keep
// their built-in text.
func ParseTemplates(sources map[string]string) (*Templates, error) {
	root := template.New("prompts").Funcs(funcMap()).Option("missingkey=error")
	for name, def := range map[string]string{
		TemplateGenerate: generatePrompt,
		TemplateMutate:   mutatePrompt,
		TemplateJudge:    judgePrompt,
	} {
		src, ok := sources[name]
		if !ok || src == "" {
			src = def
		}
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, err
		}
	}
	return &Templates{t: root}, nil
}

func (t *Templates) render(name string, data any) (string, error) {
	var b strings.Builder
	if err := t.t.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
