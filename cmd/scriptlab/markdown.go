package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"scriptlab/internal/plan"
)

const markdownWrap = 88

// renderMarkdown styles md for a terminal. Plain writers get the markdown
// source unchanged so output stays greppable.
func renderMarkdown(md string, styled bool) (string, error) {
	if !styled {
		return md, nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(markdownWrap),
	)
	if err != nil {
		return "", fmt.Errorf("init markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// planMarkdown lays a plan out as a script document: scenes with their asset
// specs, then hooks and the shot list.
func planMarkdown(title string, p *plan.Plan) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	if p == nil {
		b.WriteString("_No plan generated yet._\n")
		return b.String()
	}

	for i, scene := range p.Scenes {
		fmt.Fprintf(&b, "## Scene %d\n\n", i+1)
		if v := strings.TrimSpace(scene.Visual); v != "" {
			fmt.Fprintf(&b, "**Visual:** %s\n\n", v)
		}
		if a := strings.TrimSpace(scene.Audio); a != "" {
			fmt.Fprintf(&b, "**Audio:** %s\n\n", a)
		}
		for _, spec := range scene.Assets {
			fmt.Fprintf(&b, "- `%s` (%s) %s\n", spec.ID, spec.Medium, strings.TrimSpace(spec.Description))
		}
		if len(scene.Assets) > 0 {
			b.WriteString("\n")
		}
	}

	if len(p.HookVariations) > 0 {
		b.WriteString("## Hooks\n\n")
		for _, hook := range p.HookVariations {
			fmt.Fprintf(&b, "- **%s:** %s\n", hook.Category, strings.TrimSpace(hook.Text))
		}
		b.WriteString("\n")
	}

	if len(p.ShotList) > 0 {
		b.WriteString("## Shot List\n\n")
		b.WriteString("| # | Shot | Description | Duration |\n")
		b.WriteString("|---|------|-------------|----------|\n")
		for i, shot := range p.ShotList {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, cell(shot.Shot), cell(shot.Description), cell(shot.Duration))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cell(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "|", "\\|")
}
