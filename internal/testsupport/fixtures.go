package testsupport

import "scriptlab/internal/planner"

// PlanReply is a well-formed plan response with two scenes and three assets.
const PlanReply = `{"script":{"scenes":[` +
	`{"visual":"Creator at a cluttered desk","audio":"Three tools I use daily.","assets":[` +
	`{"id":"s1-image-desk","medium":"image","description":"Cluttered desk","usage":"background","prompt":"messy desk flat lay"},` +
	`{"id":"s1-audio-music","medium":"audio","description":"Upbeat bed","usage":"music","prompt":"lofi beat"}]},` +
	`{"visual":"Close up of a notebook","audio":"The first one costs nothing.","assets":[` +
	`{"id":"s2-video-notebook","medium":"video","description":"Notebook","usage":"b-roll","prompt":"hand writing in notebook"}]}],` +
	`"hook_variations":[{"category":"question","text":"What is on your desk?"},` +
	`{"category":"bold_claim","text":"Most desk gadgets are useless."},` +
	`{"category":"story","text":"I wasted a year on gear."}],` +
	`"shot_list":[{"shot":"Wide","description":"Desk overview","duration":"3s"}]}}`

// Brief returns a valid brief for a talking-head video.
func Brief() planner.Brief {
	return planner.Brief{
		Idea:   "Three desk tools I use daily",
		Format: "talking_head",
		Tone:   "friendly",
		Brand: planner.BrandContext{
			BusinessName: "Desk Lab",
			Niche:        "productivity",
			Pillars:      []string{"focus", "simplicity"},
			ToneOfVoice:  "warm",
		},
	}
}
