package assets

import (
	"strings"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

// SelectorMode picks where a session-wide default comes from.
type SelectorMode string

const (
	SelectNone    SelectorMode = "none"
	SelectCreator SelectorMode = "creator"
	SelectCustom  SelectorMode = "custom"
)

// Selector is a tri-state default: none, the account's creator asset, or a
// custom upload.
type Selector struct {
	Mode   SelectorMode `json:"mode"`
	Custom *Reference   `json:"custom,omitempty"`
}

// SessionDefaults are fallback references for slots without their own.
type SessionDefaults struct {
	Face  Selector `json:"face"`
	Voice Selector `json:"voice"`
}

// CreatorAssets are the account-bound face and voice references.
type CreatorAssets struct {
	Face  *Reference `json:"face,omitempty"`
	Voice *Reference `json:"voice,omitempty"`
}

// Normalize fills blank modes with none.
func (d *SessionDefaults) Normalize() {
	d.Face.normalize()
	d.Voice.normalize()
}

func (s *Selector) normalize() {
	s.Mode = SelectorMode(strings.ToLower(strings.TrimSpace(string(s.Mode))))
	if s.Mode == "" {
		s.Mode = SelectNone
	}
	if s.Mode != SelectCustom {
		s.Custom = nil
	}
}

// Validate checks that each selector names a known mode and that custom
// selectors carry a reference.
func (d SessionDefaults) Validate() error {
	for name, sel := range map[string]Selector{"face": d.Face, "voice": d.Voice} {
		switch sel.Mode {
		case SelectNone, SelectCreator:
		case SelectCustom:
			if sel.Custom == nil || strings.TrimSpace(sel.Custom.URL) == "" {
				return services.Wrap(services.ErrValidation, "assets", "defaults", name+": custom selector requires a reference url", nil)
			}
		default:
			return services.Wrap(services.ErrValidation, "assets", "defaults", name+": unknown mode "+string(sel.Mode), nil)
		}
	}
	return nil
}

func (s Selector) resolve(creator *Reference) *Reference {
	switch s.Mode {
	case SelectCreator:
		return creator
	case SelectCustom:
		return s.Custom
	default:
		return nil
	}
}

// ResolveReferences picks the references that steer a generation. Slot
// references always win. Otherwise images use the face default, audio uses
// the voice default, and video uses both. With neither, generation is
// unconditioned.
func ResolveReferences(slotRefs []Reference, medium plan.Medium, defaults SessionDefaults, creator CreatorAssets) []Reference {
	if len(slotRefs) > 0 {
		return append([]Reference(nil), slotRefs...)
	}
	var out []Reference
	if medium == plan.MediumImage || medium == plan.MediumVideo {
		if ref := defaults.Face.resolve(creator.Face); ref != nil {
			out = append(out, *ref)
		}
	}
	if medium == plan.MediumAudio || medium == plan.MediumVideo {
		if ref := defaults.Voice.resolve(creator.Voice); ref != nil {
			out = append(out, *ref)
		}
	}
	return out
}
