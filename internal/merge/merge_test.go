package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

func threeScenePlan() *plan.Plan {
	p := &plan.Plan{
		Scenes: []plan.Scene{
			{Visual: "desk", Audio: "hook", Assets: []plan.AssetSpec{}},
			{Visual: "laptop", Audio: "tool one", Assets: []plan.AssetSpec{{ID: "s2-image-laptop", Medium: plan.MediumImage, Prompt: "laptop"}}},
			{Visual: "window", Audio: "outro", Assets: []plan.AssetSpec{{ID: "s3-video-window", Medium: plan.MediumVideo}}},
		},
		HookVariations: []plan.HookVariation{
			{Category: plan.HookQuestion, Text: "Ever wonder?"},
			{Category: plan.HookBoldClaim, Text: "This changes everything."},
			{Category: plan.HookStory, Text: "Last year I..."},
		},
		ShotList: []plan.ShotItem{{Shot: "wide", Description: "desk", Duration: "3s"}},
	}
	plan.Normalize(p)
	return p
}

func TestPartialSceneUpdatePreservesAssets(t *testing.T) {
	before := threeScenePlan()
	snapshot := before.Clone()

	after, err := Apply(before, PartialSceneUpdate{Index: 1, Visual: Text("new"), Audio: Text("new")})
	require.NoError(t, err)

	assert.Equal(t, "new", after.Scenes[1].Visual)
	assert.Equal(t, "new", after.Scenes[1].Audio)
	assert.Equal(t, snapshot.Scenes[1].Assets, after.Scenes[1].Assets)
	assert.Equal(t, snapshot.Scenes[0], after.Scenes[0])
	assert.Equal(t, snapshot.Scenes[2], after.Scenes[2])
	assert.Equal(t, snapshot, before, "input plan must not be modified")
}

func TestPartialSceneUpdateKeepsOmittedField(t *testing.T) {
	after, err := Apply(threeScenePlan(), PartialSceneUpdate{Index: 0, Audio: Text("sharper hook")})
	require.NoError(t, err)
	assert.Equal(t, "desk", after.Scenes[0].Visual)
	assert.Equal(t, "sharper hook", after.Scenes[0].Audio)
}

func TestPartialSceneUpdateRejectsBadIndex(t *testing.T) {
	before := threeScenePlan()
	for _, idx := range []int{-1, 3} {
		_, err := Apply(before, PartialSceneUpdate{Index: idx, Visual: Text("x")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrInvalidUpdate))
	}
}

func TestFullScriptUpdateCarriesAssetsForward(t *testing.T) {
	before := threeScenePlan()
	update := FullScriptUpdate{Scenes: []SceneUpdate{
		{Visual: "a", Audio: "a"},
		{Visual: "b", Audio: "b"},
		{Visual: "c", Audio: "c", Assets: []plan.AssetSpec{{Medium: "clip", Usage: "City timelapse"}}},
		{Visual: "d", Audio: "d"},
	}}

	after, err := Apply(before, update)
	require.NoError(t, err)
	require.Len(t, after.Scenes, 4)

	assert.Empty(t, after.Scenes[0].Assets)
	assert.Equal(t, before.Scenes[1].Assets, after.Scenes[1].Assets)
	require.Len(t, after.Scenes[2].Assets, 1)
	assert.Equal(t, "s3-video-city-timelapse", after.Scenes[2].Assets[0].ID)
	assert.NotNil(t, after.Scenes[3].Assets)
	assert.Empty(t, after.Scenes[3].Assets)
}

func TestFullScriptUpdateKeepsCarriedIDsOnCollision(t *testing.T) {
	before := threeScenePlan()
	update := FullScriptUpdate{Scenes: []SceneUpdate{
		{Visual: "a", Audio: "a", Assets: []plan.AssetSpec{{ID: "s2-image-laptop", Medium: plan.MediumImage}}},
		{Visual: "b", Audio: "b"},
	}}

	after, err := Apply(before, update)
	require.NoError(t, err)
	assert.Equal(t, "s2-image-laptop", after.Scenes[1].Assets[0].ID)
	assert.Equal(t, "s2-image-laptop-2", after.Scenes[0].Assets[0].ID)
}

func TestFullScriptUpdateShrinkDropsTrailingScenes(t *testing.T) {
	after, err := Apply(threeScenePlan(), FullScriptUpdate{Scenes: []SceneUpdate{{Visual: "only", Audio: "one"}}})
	require.NoError(t, err)
	require.Len(t, after.Scenes, 1)

	_, err = Apply(threeScenePlan(), FullScriptUpdate{})
	assert.True(t, errors.Is(err, services.ErrInvalidUpdate))
}

func TestHookListUpdate(t *testing.T) {
	before := threeScenePlan()
	hooks := []plan.HookVariation{
		{Category: "Story", Text: "It started with a mistake."},
		{Category: "bold-claim", Text: "You're wasting hours."},
		{Category: "question", Text: "What if?"},
	}
	after, err := Apply(before, HookListUpdate{Hooks: hooks})
	require.NoError(t, err)
	assert.Equal(t, plan.HookStory, after.HookVariations[0].Category)
	assert.Equal(t, plan.HookBoldClaim, after.HookVariations[1].Category)

	cases := map[string][]plan.HookVariation{
		"too few":   hooks[:2],
		"duplicate": {hooks[0], hooks[0], hooks[2]},
		"empty":     {hooks[0], hooks[1], {Category: "question"}},
		"unknown":   {hooks[0], hooks[1], {Category: "teaser", Text: "x"}},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Apply(before, HookListUpdate{Hooks: bad})
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, services.ErrInvalidUpdate))
		})
	}
	assert.Equal(t, threeScenePlan().HookVariations, before.HookVariations)
}

func TestShotListUpdate(t *testing.T) {
	before := threeScenePlan()
	after, err := Apply(before, ShotListUpdate{Shots: []plan.ShotItem{{Shot: "close"}, {Shot: "wide"}}})
	require.NoError(t, err)
	assert.Len(t, after.ShotList, 2)
	assert.Len(t, before.ShotList, 1)

	tooMany := make([]plan.ShotItem, plan.MaxShotListItems+1)
	for i := range tooMany {
		tooMany[i] = plan.ShotItem{Shot: "s"}
	}
	for _, bad := range [][]plan.ShotItem{nil, tooMany, {{Shot: " "}}} {
		_, err := Apply(before, ShotListUpdate{Shots: bad})
		assert.True(t, errors.Is(err, services.ErrInvalidUpdate))
	}
}

func TestUnrelatedUpdatesCommute(t *testing.T) {
	a := PartialSceneUpdate{Index: 0, Audio: Text("first")}
	b := PartialSceneUpdate{Index: 2, Visual: Text("third")}
	c := ShotListUpdate{Shots: []plan.ShotItem{{Shot: "close"}}}

	apply := func(updates ...Update) *plan.Plan {
		p := threeScenePlan()
		for _, u := range updates {
			var err error
			p, err = Apply(p, u)
			require.NoError(t, err)
		}
		return p
	}
	assert.Equal(t, apply(a, b, c), apply(c, b, a))
	assert.Equal(t, apply(a, a), apply(a))
}

func TestDecode(t *testing.T) {
	u, err := Decode([]byte(`{"kind":"scene","index":1,"visual":"v","copy":"c"}`))
	require.NoError(t, err)
	scene, ok := u.(PartialSceneUpdate)
	require.True(t, ok)
	assert.Equal(t, 1, scene.Index)
	assert.Equal(t, "v", *scene.Visual)
	assert.Equal(t, "c", *scene.Audio)

	u, err = Decode([]byte(`{"scenes":[{"visual":"a","audio":"b"},{"visual":"c","audio":"d","assets":[]}]}`))
	require.NoError(t, err)
	script, ok := u.(FullScriptUpdate)
	require.True(t, ok)
	assert.Nil(t, script.Scenes[0].Assets)
	assert.NotNil(t, script.Scenes[1].Assets)

	u, err = Decode([]byte(`{"kind":"hooks","hooks":[{"category":"story","text":"x"}]}`))
	require.NoError(t, err)
	assert.Len(t, u.(HookListUpdate).Hooks, 1)

	for _, bad := range []string{`[1,2]`, `{"kind":"scene"}`, `{"kind":"weather"}`, `{}`} {
		_, err := Decode([]byte(bad))
		assert.True(t, errors.Is(err, services.ErrInvalidUpdate), bad)
	}
}

func TestEncodeDecodePartialScene(t *testing.T) {
	original := PartialSceneUpdate{Index: 2, Audio: Text("line")}
	data, err := Encode(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"scene","index":2,"audio":"line"}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
