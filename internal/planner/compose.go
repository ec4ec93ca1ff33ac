package planner

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

const (
	planSystemPrompt     = "You are a short-form video scriptwriter. You respond with a single JSON object and nothing else."
	critiqueSystemPrompt = "You are a brand editor for a content creator. You respond with a single JSON object and nothing else."
	defaultTone          = "Conversational"
)

var prompts = template.Must(template.New("").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(promptFS, "prompts/*.tmpl"))

type planPromptData struct {
	Brief
	Format Format
}

// Compose renders the plan-generation prompt for brief. The output is a pure
// function of the brief.
func Compose(brief Brief) (string, error) {
	if err := brief.Validate(); err != nil {
		return "", err
	}
	format, _ := LookupFormat(brief.Format)

	data := planPromptData{Brief: brief, Format: format}
	data.Idea = strings.TrimSpace(brief.Idea)
	data.Tone = titleCase(brief.Tone)
	if data.Tone == "" {
		data.Tone = defaultTone
	}
	data.Platform = titleCase(brief.Platform)
	data.Brand = brief.Brand
	data.Brand.Pillars = brief.Brand.Constraints().Pillars
	data.Feedback = nonBlank(brief.Feedback)

	return render("plan.tmpl", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
