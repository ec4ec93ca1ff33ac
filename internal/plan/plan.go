package plan

import (
	"encoding/json"
	"fmt"
)

// Medium is the kind of media an asset spec requests.
type Medium string

const (
	MediumImage Medium = "image"
	MediumVideo Medium = "video"
	MediumAudio Medium = "audio"
)

// Valid reports whether m is a known medium.
func (m Medium) Valid() bool {
	switch m {
	case MediumImage, MediumVideo, MediumAudio:
		return true
	}
	return false
}

// Hook variation categories every complete hook list carries.
const (
	HookQuestion  = "question"
	HookBoldClaim = "bold_claim"
	HookStory     = "story"
)

// RequiredHookCategories lists the categories a hook list must cover.
func RequiredHookCategories() []string {
	return []string{HookQuestion, HookBoldClaim, HookStory}
}

// MaxShotListItems bounds a replacement shot list.
const MaxShotListItems = 12

// Plan is the generated production plan.
type Plan struct {
	Scenes         []Scene         `json:"scenes"`
	HookVariations []HookVariation `json:"hook_variations"`
	ShotList       []ShotItem      `json:"shot_list"`
}

// Scene is one positional unit of the script.
type Scene struct {
	Visual string      `json:"visual"`
	Audio  string      `json:"audio"`
	Assets []AssetSpec `json:"assets"`
}

// AssetSpec is a declarative request for one generated media item.
type AssetSpec struct {
	ID          string `json:"id"`
	Medium      Medium `json:"medium"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Prompt      string `json:"prompt"`
}

// HookVariation is an alternative opening line.
type HookVariation struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// ShotItem is one entry of the filming checklist.
type ShotItem struct {
	Shot        string `json:"shot"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

type envelope struct {
	Script *Plan `json:"script"`
}

// MarshalEnvelope renders p in the {"script":{...}} wire form the model is
// asked to produce.
func MarshalEnvelope(p *Plan) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("marshal plan: nil plan")
	}
	return json.Marshal(envelope{Script: p})
}

// UnmarshalEnvelope decodes the {"script":{...}} wire form. The result is not
// normalized.
func UnmarshalEnvelope(data []byte) (*Plan, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Script == nil {
		return nil, fmt.Errorf("missing top-level \"script\" object")
	}
	return env.Script, nil
}

// Clone returns a deep copy of p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{
		Scenes:         make([]Scene, len(p.Scenes)),
		HookVariations: append([]HookVariation{}, p.HookVariations...),
		ShotList:       append([]ShotItem{}, p.ShotList...),
	}
	for i, scene := range p.Scenes {
		out.Scenes[i] = scene.Clone()
	}
	return out
}

// Clone returns a deep copy of s.
func (s Scene) Clone() Scene {
	s.Assets = append([]AssetSpec{}, s.Assets...)
	return s
}

// AssetSpecs returns every asset spec in scene order.
func (p *Plan) AssetSpecs() []AssetSpec {
	if p == nil {
		return nil
	}
	var out []AssetSpec
	for _, scene := range p.Scenes {
		out = append(out, scene.Assets...)
	}
	return out
}

// SceneAssets returns the asset specs of the scene at index, or false when the
// index is out of range.
func (p *Plan) SceneAssets(index int) ([]AssetSpec, bool) {
	if p == nil || index < 0 || index >= len(p.Scenes) {
		return nil, false
	}
	return append([]AssetSpec{}, p.Scenes[index].Assets...), true
}

// FindAsset locates an asset spec by ID and reports its scene index.
func (p *Plan) FindAsset(id string) (AssetSpec, int, bool) {
	if p == nil {
		return AssetSpec{}, -1, false
	}
	for i, scene := range p.Scenes {
		for _, spec := range scene.Assets {
			if spec.ID == id {
				return spec, i, true
			}
		}
	}
	return AssetSpec{}, -1, false
}
