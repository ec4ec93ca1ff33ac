package planner

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"scriptlab/internal/services"
)

// Brief is the structured input to plan generation.
type Brief struct {
	Idea     string       `json:"idea" yaml:"idea"`
	Format   string       `json:"format" yaml:"format"`
	Tone     string       `json:"tone,omitempty" yaml:"tone"`
	Angle    string       `json:"angle,omitempty" yaml:"angle"`
	Platform string       `json:"platform,omitempty" yaml:"platform"`
	Brand    BrandContext `json:"brand" yaml:"brand"`
	// Feedback carries notes from earlier refinement rounds, oldest first.
	Feedback []string `json:"feedback,omitempty" yaml:"feedback"`
}

// BrandContext describes the creator's business and positioning.
type BrandContext struct {
	BusinessName string   `json:"business_name,omitempty" yaml:"business_name"`
	Niche        string   `json:"niche,omitempty" yaml:"niche"`
	Audience     string   `json:"audience,omitempty" yaml:"audience"`
	Offer        string   `json:"offer,omitempty" yaml:"offer"`
	Positioning  string   `json:"positioning,omitempty" yaml:"positioning"`
	Pillars      []string `json:"pillars,omitempty" yaml:"pillars"`
	ToneOfVoice  string   `json:"tone_of_voice,omitempty" yaml:"tone_of_voice"`
}

// Constraints extracts the brand constraints the critique pass checks against.
func (b BrandContext) Constraints() BrandConstraints {
	pillars := make([]string, 0, len(b.Pillars))
	for _, p := range b.Pillars {
		if p = strings.TrimSpace(p); p != "" {
			pillars = append(pillars, p)
		}
	}
	return BrandConstraints{
		Pillars:     pillars,
		Positioning: strings.TrimSpace(b.Positioning),
		Tone:        strings.TrimSpace(b.ToneOfVoice),
	}
}

// Format describes scene cardinality for a content format.
type Format struct {
	Name      string
	MinScenes int
	MaxScenes int
	Guidance  string
}

// Label renders the format name for prompts and tables.
func (f Format) Label() string {
	return titleCase(strings.ReplaceAll(f.Name, "_", " "))
}

var formats = map[string]Format{
	"talking_head": {
		Name: "talking_head", MinScenes: 3, MaxScenes: 5,
		Guidance: "The creator speaks directly to camera; visuals are framing and gesture notes.",
	},
	"voiceover_broll": {
		Name: "voiceover_broll", MinScenes: 4, MaxScenes: 6,
		Guidance: "Narration over supporting footage; every scene needs at least one visual asset.",
	},
	"tutorial": {
		Name: "tutorial", MinScenes: 5, MaxScenes: 7,
		Guidance: "Step-by-step walkthrough; one concrete step per scene.",
	},
	"storytime": {
		Name: "storytime", MinScenes: 4, MaxScenes: 6,
		Guidance: "A personal story with setup, tension, and payoff.",
	},
	"listicle": {
		Name: "listicle", MinScenes: 5, MaxScenes: 8,
		Guidance: "Numbered points; each scene delivers exactly one item.",
	},
}

// LookupFormat resolves a format by name (case-insensitive, spaces or dashes
// accepted in place of underscores).
func LookupFormat(name string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	f, ok := formats[key]
	return f, ok
}

// Formats lists the supported formats sorted by name.
func Formats() []Format {
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks that the brief can be composed into a prompt.
func (b Brief) Validate() error {
	if strings.TrimSpace(b.Idea) == "" {
		return services.Wrap(services.ErrValidation, "planner", "validate brief", "idea is required", nil)
	}
	if _, ok := LookupFormat(b.Format); !ok {
		return services.Wrap(services.ErrValidation, "planner", "validate brief", fmt.Sprintf("unknown format %q", b.Format), nil)
	}
	return nil
}

// LoadBrief reads a YAML brief from disk.
func LoadBrief(path string) (Brief, error) {
	var brief Brief
	data, err := os.ReadFile(path)
	if err != nil {
		return brief, fmt.Errorf("read brief: %w", err)
	}
	if err := yaml.Unmarshal(data, &brief); err != nil {
		return brief, services.Wrap(services.ErrValidation, "planner", "load brief", "parse yaml", err)
	}
	if err := brief.Validate(); err != nil {
		return brief, err
	}
	return brief, nil
}

func titleCase(value string) string {
	return cases.Title(language.English).String(strings.TrimSpace(value))
}
