package merge

import (
	"fmt"
	"strings"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

// Apply returns a copy of p with u applied. p is never modified. A rejected
// update returns services.ErrInvalidUpdate.
func Apply(p *plan.Plan, u Update) (*plan.Plan, error) {
	if p == nil {
		return nil, invalid("apply", "no plan to update", nil)
	}
	switch u := u.(type) {
	case PartialSceneUpdate:
		return applyScene(p, u)
	case *PartialSceneUpdate:
		return applyScene(p, *u)
	case FullScriptUpdate:
		return applyScript(p, u)
	case *FullScriptUpdate:
		return applyScript(p, *u)
	case HookListUpdate:
		return applyHooks(p, u)
	case *HookListUpdate:
		return applyHooks(p, *u)
	case ShotListUpdate:
		return applyShots(p, u)
	case *ShotListUpdate:
		return applyShots(p, *u)
	default:
		return nil, invalid("apply", fmt.Sprintf("unsupported update %T", u), nil)
	}
}

func applyScene(p *plan.Plan, u PartialSceneUpdate) (*plan.Plan, error) {
	if u.Index < 0 || u.Index >= len(p.Scenes) {
		return nil, invalid("scene", fmt.Sprintf("scene index %d out of range (0..%d)", u.Index, len(p.Scenes)-1), nil)
	}
	if u.Visual == nil && u.Audio == nil {
		return nil, invalid("scene", "update carries neither visual nor audio", nil)
	}
	out := p.Clone()
	scene := &out.Scenes[u.Index]
	if u.Visual != nil {
		scene.Visual = *u.Visual
	}
	if u.Audio != nil {
		scene.Audio = *u.Audio
	}
	return out, nil
}

// applyScript rebuilds the scene list by position. Slots for scenes dropped
// by a shorter script stay in the registry; a later update may bring their
// IDs back.
func applyScript(p *plan.Plan, u FullScriptUpdate) (*plan.Plan, error) {
	if len(u.Scenes) == 0 {
		return nil, invalid("script", "script replacement has no scenes", nil)
	}
	out := p.Clone()
	carried := make([]bool, len(u.Scenes))
	scenes := make([]plan.Scene, len(u.Scenes))
	for i, incoming := range u.Scenes {
		scene := plan.Scene{Visual: incoming.Visual, Audio: incoming.Audio}
		switch {
		case incoming.Assets != nil:
			scene.Assets = append([]plan.AssetSpec{}, incoming.Assets...)
		case i < len(out.Scenes):
			scene.Assets = out.Scenes[i].Assets
			carried[i] = true
		default:
			scene.Assets = []plan.AssetSpec{}
		}
		scenes[i] = scene
	}
	out.Scenes = scenes
	plan.NormalizePreserving(out, func(i int) bool { return carried[i] })
	return out, nil
}

func applyHooks(p *plan.Plan, u HookListUpdate) (*plan.Plan, error) {
	if err := ValidateHooks(u.Hooks); err != nil {
		return nil, err
	}
	out := p.Clone()
	out.HookVariations = make([]plan.HookVariation, len(u.Hooks))
	for i, hook := range u.Hooks {
		out.HookVariations[i] = plan.HookVariation{
			Category: plan.NormalizeHookCategory(hook.Category),
			Text:     strings.TrimSpace(hook.Text),
		}
	}
	return out, nil
}

func applyShots(p *plan.Plan, u ShotListUpdate) (*plan.Plan, error) {
	if err := ValidateShots(u.Shots); err != nil {
		return nil, err
	}
	out := p.Clone()
	out.ShotList = append([]plan.ShotItem{}, u.Shots...)
	return out, nil
}

// ValidateHooks requires exactly one non-empty variation per required
// category and nothing else.
func ValidateHooks(hooks []plan.HookVariation) error {
	required := plan.RequiredHookCategories()
	if len(hooks) != len(required) {
		return invalid("hooks", fmt.Sprintf("hook list must have %d variations, got %d", len(required), len(hooks)), nil)
	}
	seen := make(map[string]bool, len(hooks))
	for _, hook := range hooks {
		category := plan.NormalizeHookCategory(hook.Category)
		if seen[category] {
			return invalid("hooks", "duplicate hook category "+category, nil)
		}
		if strings.TrimSpace(hook.Text) == "" {
			return invalid("hooks", "empty hook text for "+category, nil)
		}
		seen[category] = true
	}
	for _, category := range required {
		if !seen[category] {
			return invalid("hooks", "missing hook category "+category, nil)
		}
	}
	return nil
}

// ValidateShots requires between one and plan.MaxShotListItems shots, each
// naming the shot.
func ValidateShots(shots []plan.ShotItem) error {
	if len(shots) == 0 || len(shots) > plan.MaxShotListItems {
		return invalid("shot_list", fmt.Sprintf("shot list must have 1..%d items, got %d", plan.MaxShotListItems, len(shots)), nil)
	}
	for i, shot := range shots {
		if strings.TrimSpace(shot.Shot) == "" {
			return invalid("shot_list", fmt.Sprintf("shot %d has no name", i), nil)
		}
	}
	return nil
}

func invalid(operation, message string, err error) error {
	return services.Wrap(services.ErrInvalidUpdate, "merge", operation, message, err)
}
