package assets

import (
	"time"

	"scriptlab/internal/plan"
)

// State is the observable state of a slot.
type State string

const (
	StateEmpty      State = "empty"
	StateReferenced State = "referenced"
	StateReady      State = "ready"
)

// ReferenceKind identifies where a reference came from.
type ReferenceKind string

const (
	ReferenceUpload       ReferenceKind = "upload"
	ReferenceCreatorFace  ReferenceKind = "creator_face"
	ReferenceCreatorVoice ReferenceKind = "creator_voice"
)

// Reference is a steering input for generation.
type Reference struct {
	ID        string        `json:"id"`
	Kind      ReferenceKind `json:"kind"`
	Medium    plan.Medium   `json:"medium"`
	URL       string        `json:"url"`
	LocalPath string        `json:"local_path,omitempty"`
	// Temporary references are released once a generation consumes them.
	Temporary bool `json:"temporary,omitempty"`
}

// Provenance records whether a result was generated or uploaded.
type Provenance string

const (
	ProvenanceAI     Provenance = "ai"
	ProvenanceUpload Provenance = "upload"
)

// GeneratedAsset is the output installed in a ready slot.
type GeneratedAsset struct {
	URL        string            `json:"url"`
	Provenance Provenance        `json:"provenance"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SlotView is a read-only copy of a slot.
type SlotView struct {
	ID         string          `json:"id"`
	State      State           `json:"state"`
	References []Reference     `json:"references"`
	Result     *GeneratedAsset `json:"result,omitempty"`
	InFlight   bool            `json:"in_flight"`
}

// SlotSnapshot is the persisted form of a slot. In-flight state is never
// persisted.
type SlotSnapshot struct {
	ID         string          `json:"id"`
	References []Reference     `json:"references,omitempty"`
	Result     *GeneratedAsset `json:"result,omitempty"`
}
