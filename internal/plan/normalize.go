package plan

import (
	"strconv"
	"strings"
	"unicode"
)

const maxSlugLength = 32

// Normalize fills absent lists with empty ones, canonicalizes media and hook
// categories, and derives unique asset IDs. It is idempotent.
func Normalize(p *Plan) {
	if p == nil {
		return
	}
	normalizeLists(p)
	normalizeAssets(p, nil)
}

// NormalizePreserving normalizes p like Normalize, except that assets of
// scenes where preserved reports true keep their IDs. Other scenes' IDs are
// made unique around them.
func NormalizePreserving(p *Plan, preserved func(sceneIndex int) bool) {
	if p == nil {
		return
	}
	normalizeLists(p)
	normalizeAssets(p, preserved)
}

func normalizeLists(p *Plan) {
	if p.Scenes == nil {
		p.Scenes = []Scene{}
	}
	if p.HookVariations == nil {
		p.HookVariations = []HookVariation{}
	}
	if p.ShotList == nil {
		p.ShotList = []ShotItem{}
	}
	for i := range p.HookVariations {
		p.HookVariations[i].Category = NormalizeHookCategory(p.HookVariations[i].Category)
	}
}

func normalizeAssets(p *Plan, preserved func(int) bool) {
	seen := make(map[string]struct{})
	if preserved != nil {
		for i := range p.Scenes {
			if !preserved(i) {
				continue
			}
			for _, spec := range p.Scenes[i].Assets {
				seen[spec.ID] = struct{}{}
			}
		}
	}
	for i := range p.Scenes {
		scene := &p.Scenes[i]
		if scene.Assets == nil {
			scene.Assets = []AssetSpec{}
		}
		if preserved != nil && preserved(i) {
			continue
		}
		for j := range scene.Assets {
			spec := &scene.Assets[j]
			spec.Medium = NormalizeMedium(string(spec.Medium))
			spec.ID = strings.TrimSpace(spec.ID)
			if spec.ID == "" {
				spec.ID = DeriveAssetID(i, spec.Medium, firstNonBlank(spec.Usage, spec.Description))
			}
			spec.ID = uniqueID(spec.ID, seen)
		}
	}
}

// NormalizeMedium maps free-form medium labels onto the known set. Unknown
// values fall back to image.
func NormalizeMedium(value string) Medium {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "video", "clip", "b-roll", "broll":
		return MediumVideo
	case "audio", "sound", "voice", "music", "voiceover":
		return MediumAudio
	default:
		return MediumImage
	}
}

// NormalizeHookCategory lowercases and snake-cases a hook category label.
func NormalizeHookCategory(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.NewReplacer(" ", "_", "-", "_").Replace(value)
	return value
}

// DeriveAssetID builds s<scene>-<medium>-<slug> for the zero-based scene index.
func DeriveAssetID(sceneIndex int, medium Medium, purpose string) string {
	slug := Slug(purpose)
	if slug == "" {
		slug = "asset"
	}
	return "s" + strconv.Itoa(sceneIndex+1) + "-" + string(medium) + "-" + slug
}

// Slug lowercases value and joins its alphanumeric runs with dashes.
func Slug(value string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if r > unicode.MaxASCII {
				continue
			}
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			if b.Len() >= maxSlugLength {
				break
			}
			continue
		}
		pendingDash = true
	}
	return strings.TrimRight(b.String(), "-")
}

func uniqueID(id string, seen map[string]struct{}) string {
	candidate := id
	for n := 2; ; n++ {
		if _, ok := seen[candidate]; !ok {
			seen[candidate] = struct{}{}
			return candidate
		}
		candidate = id + "-" + strconv.Itoa(n)
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
