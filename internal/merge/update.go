package merge

import "scriptlab/internal/plan"

// Kind tags an update on the wire.
type Kind string

const (
	KindScene    Kind = "scene"
	KindScript   Kind = "script"
	KindHooks    Kind = "hooks"
	KindShotList Kind = "shot_list"
)

// Update is one of PartialSceneUpdate, FullScriptUpdate, HookListUpdate or
// ShotListUpdate.
type Update interface {
	Kind() Kind
	sealed()
}

// PartialSceneUpdate replaces the visual and spoken copy of one scene. Nil
// fields are left as they are. The scene's asset specs are never touched.
type PartialSceneUpdate struct {
	Index  int
	Visual *string
	Audio  *string
}

// SceneUpdate is one position of a full script replacement. A nil Assets
// carries the previous asset list at the same position forward.
type SceneUpdate struct {
	Visual string
	Audio  string
	Assets []plan.AssetSpec
}

// FullScriptUpdate replaces every scene by position.
type FullScriptUpdate struct {
	Scenes []SceneUpdate
}

// HookListUpdate replaces the hook variations wholesale.
type HookListUpdate struct {
	Hooks []plan.HookVariation
}

// ShotListUpdate replaces the shot list wholesale.
type ShotListUpdate struct {
	Shots []plan.ShotItem
}

func (PartialSceneUpdate) Kind() Kind { return KindScene }
func (FullScriptUpdate) Kind() Kind   { return KindScript }
func (HookListUpdate) Kind() Kind     { return KindHooks }
func (ShotListUpdate) Kind() Kind     { return KindShotList }

func (PartialSceneUpdate) sealed() {}
func (FullScriptUpdate) sealed()   {}
func (HookListUpdate) sealed()     {}
func (ShotListUpdate) sealed()     {}

// Text returns a pointer to s for building partial updates.
func Text(s string) *string {
	return &s
}
