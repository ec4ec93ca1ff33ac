package planner

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

const wellFormed = `{"script":{"scenes":[{"visual":"Creator at desk","audio":"Stop scrolling.","assets":[{"id":"s1-image-desk","medium":"image","description":"Desk","usage":"background","prompt":"a tidy desk"}]},{"visual":"Close up","audio":"Here is why.","assets":[]}],"hook_variations":[{"category":"question","text":"Ever wondered?"},{"category":"bold_claim","text":"This changes everything."},{"category":"story","text":"Last year I..."}],"shot_list":[{"shot":"Wide","description":"Desk setup","duration":"3s"}]}}`

func TestExtractTruncatedShotList(t *testing.T) {
	raw := `{"script":{"scenes":[{"visual":"a","audio":"b"}],"shot_list":[`
	p, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(p.Scenes) != 1 || p.Scenes[0].Visual != "a" || p.Scenes[0].Audio != "b" {
		t.Fatalf("unexpected scenes: %+v", p.Scenes)
	}
	if p.ShotList == nil || len(p.ShotList) != 0 {
		t.Fatalf("expected empty shot list, got %#v", p.ShotList)
	}
	if p.HookVariations == nil {
		t.Fatal("expected hook variations normalized to empty list")
	}
}

func TestExtractStripsFencesAndProse(t *testing.T) {
	cases := map[string]string{
		"fenced":     "```json\n" + wellFormed + "\n```",
		"prose":      "Here is your script:\n" + wellFormed + "\nGood luck!",
		"bare fence": "```\n" + wellFormed + "```",
	}
	want, err := Extract(wellFormed)
	if err != nil {
		t.Fatalf("Extract(wellFormed): %v", err)
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Extract(raw)
			if err != nil {
				t.Fatalf("Extract returned error: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractRoundTripsItsOwnSerialization(t *testing.T) {
	inputs := []string{
		wellFormed,
		`{"script":{"scenes":[{"visual":"v","audio":"a","assets":[{"medium":"Video","usage":"B-roll"},{"medium":"video","usage":"b roll"}]}]}}`,
	}
	for _, raw := range inputs {
		first, err := Extract(raw)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		data, err := plan.MarshalEnvelope(first)
		if err != nil {
			t.Fatalf("MarshalEnvelope: %v", err)
		}
		second, err := Extract(string(data))
		if err != nil {
			t.Fatalf("Extract(serialized): %v", err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("round trip changed plan (-first +second):\n%s", diff)
		}
	}
}

func TestExtractFailures(t *testing.T) {
	cases := map[string]string{
		"no json":       "I cannot help with that.",
		"no scenes":     `{"script":{"scenes":[]}}`,
		"missing root":  `{"scenes":[{"visual":"a","audio":"b"}]}`,
		"cut in scenes": `{"script":{"scenes":[`,
		"broken":        `{"script": nope}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Extract(raw)
			if err == nil {
				t.Fatalf("expected error, got plan %+v", p)
			}
			if p != nil {
				t.Fatal("expected nil plan on failure")
			}
			if !errors.Is(err, services.ErrMalformedOutput) {
				t.Fatalf("expected malformed output marker, got %v", err)
			}
		})
	}
}

func TestRepairRestoresSingleMissingCloser(t *testing.T) {
	var want any
	if err := json.Unmarshal([]byte(wellFormed), &want); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, cut := range []int{1, 2, 3} {
		truncated := wellFormed[:len(wellFormed)-cut]
		repaired, ok := repairJSON(truncated)
		if !ok {
			t.Fatalf("cut %d: repair failed", cut)
		}
		var got any
		if err := json.Unmarshal([]byte(repaired), &got); err != nil {
			t.Fatalf("cut %d: repaired output invalid: %v (%s)", cut, err, repaired)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("cut %d: structure mismatch (-want +got):\n%s", cut, diff)
		}
	}
}

func TestRepairEveryPrefixIsValidJSON(t *testing.T) {
	doc := `{"a":[1,-2.5,true,null,{"b":"x\"y","c":[]}],"d":{"e":"f"},"g":12}`
	for n := 1; n <= len(doc); n++ {
		repaired, ok := repairJSON(doc[:n])
		if !ok {
			t.Fatalf("prefix %d (%q): repair failed", n, doc[:n])
		}
		if !json.Valid([]byte(repaired)) {
			t.Fatalf("prefix %d (%q): invalid repair %q", n, doc[:n], repaired)
		}
	}
}

func TestRepairCases(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1,`, `{"a":1}`},
		{`{"a":[1,2,`, `{"a":[1,2]}`},
		{`{"a":"unterminated`, `{}`},
		{`{"a":1,"b":tru`, `{"a":1}`},
		{`{"a":{"b":[{"c":1}`, `{"a":{"b":[{"c":1}]}}`},
		{`{"a":[1,],"b":2}`, `{"a":[1],"b":2}`},
		{`{"a":1} trailing`, `{"a":1}`},
	}
	for _, tc := range cases {
		got, ok := repairJSON(tc.in)
		if !ok {
			t.Fatalf("repairJSON(%q) failed", tc.in)
		}
		if got != tc.want {
			t.Errorf("repairJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, ok := repairJSON(`"just a string`); ok {
		t.Fatal("expected failure without any container")
	}
}
