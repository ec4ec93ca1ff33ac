package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"scriptlab/internal/plan"
)

// wireUpdate is the JSON form of every update kind. Models sometimes drop
// the kind tag or use "copy" for the spoken line, so decoding accepts both.
type wireUpdate struct {
	Kind           Kind                 `json:"kind"`
	Index          *int                 `json:"index,omitempty"`
	Visual         *string              `json:"visual,omitempty"`
	Audio          *string              `json:"audio,omitempty"`
	Copy           *string              `json:"copy,omitempty"`
	Scenes         []wireScene          `json:"scenes,omitempty"`
	HookVariations []plan.HookVariation `json:"hook_variations,omitempty"`
	Hooks          []plan.HookVariation `json:"hooks,omitempty"`
	ShotList       []plan.ShotItem      `json:"shot_list,omitempty"`
}

type wireScene struct {
	Visual string           `json:"visual"`
	Audio  string           `json:"audio,omitempty"`
	Copy   string           `json:"copy,omitempty"`
	Assets []plan.AssetSpec `json:"assets"`
}

// Decode parses the JSON form of an update. Shape errors wrap
// services.ErrInvalidUpdate.
func Decode(data []byte) (Update, error) {
	var w wireUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, invalid("decode", "update is not a JSON object", err)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(string(w.Kind))))
	if kind == "" {
		kind = inferKind(w)
	}
	switch kind {
	case KindScene:
		if w.Index == nil {
			return nil, invalid("decode", "scene update requires index", nil)
		}
		audio := w.Audio
		if audio == nil {
			audio = w.Copy
		}
		return PartialSceneUpdate{Index: *w.Index, Visual: w.Visual, Audio: audio}, nil
	case KindScript:
		scenes := make([]SceneUpdate, len(w.Scenes))
		for i, s := range w.Scenes {
			audio := s.Audio
			if audio == "" {
				audio = s.Copy
			}
			scenes[i] = SceneUpdate{Visual: s.Visual, Audio: audio, Assets: s.Assets}
		}
		return FullScriptUpdate{Scenes: scenes}, nil
	case KindHooks:
		hooks := w.HookVariations
		if hooks == nil {
			hooks = w.Hooks
		}
		return HookListUpdate{Hooks: hooks}, nil
	case KindShotList:
		return ShotListUpdate{Shots: w.ShotList}, nil
	default:
		return nil, invalid("decode", fmt.Sprintf("unknown update kind %q", kind), nil)
	}
}

func inferKind(w wireUpdate) Kind {
	switch {
	case w.Index != nil:
		return KindScene
	case w.Scenes != nil:
		return KindScript
	case w.HookVariations != nil || w.Hooks != nil:
		return KindHooks
	case w.ShotList != nil:
		return KindShotList
	default:
		return ""
	}
}

// Encode renders u in its JSON form.
func Encode(u Update) ([]byte, error) {
	w := wireUpdate{Kind: u.Kind()}
	switch u := u.(type) {
	case PartialSceneUpdate:
		w.Index, w.Visual, w.Audio = &u.Index, u.Visual, u.Audio
	case FullScriptUpdate:
		w.Scenes = make([]wireScene, len(u.Scenes))
		for i, s := range u.Scenes {
			w.Scenes[i] = wireScene{Visual: s.Visual, Audio: s.Audio, Assets: s.Assets}
		}
	case HookListUpdate:
		w.HookVariations = u.Hooks
	case ShotListUpdate:
		w.ShotList = u.Shots
	default:
		return nil, invalid("encode", fmt.Sprintf("unsupported update %T", u), nil)
	}
	return json.Marshal(w)
}
