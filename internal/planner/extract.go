package planner

import (
	"errors"
	"strings"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
	"scriptlab/internal/services/llm"
)

// Extract locates and decodes the production plan inside raw model output.
// It strips code fences, parses the widest {...} span, and when that fails
// parses a repaired copy of everything from the first '{' onward. The result
// is normalized. Any failure wraps services.ErrMalformedOutput; Extract never
// returns a partial or empty plan.
func Extract(raw string) (*plan.Plan, error) {
	text := stripFences(raw)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, malformed("no JSON object in model output", raw, nil)
	}

	candidate := text[start:]
	if end := strings.LastIndexByte(text, '}'); end > start {
		candidate = text[start : end+1]
	}
	p, firstErr := decodePlan(candidate)
	if firstErr == nil {
		return p, nil
	}

	repaired, ok := repairJSON(text[start:])
	if !ok {
		return nil, malformed("unrepairable JSON", raw, firstErr)
	}
	p, err := decodePlan(repaired)
	if err != nil {
		return nil, malformed("repaired JSON still invalid", raw, err)
	}
	return p, nil
}

func decodePlan(data string) (*plan.Plan, error) {
	p, err := plan.UnmarshalEnvelope([]byte(data))
	if err != nil {
		return nil, err
	}
	if len(p.Scenes) == 0 {
		return nil, errNoScenes
	}
	plan.Normalize(p)
	return p, nil
}

var errNoScenes = errors.New("script has no scenes")

func malformed(message, raw string, err error) error {
	return services.Wrap(
		services.ErrMalformedOutput,
		"planner",
		"extract",
		message+" (payload snippet: "+llm.Snippet(raw)+")",
		err,
	)
}

// stripFences removes a leading ``` marker line and a trailing ``` marker.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
