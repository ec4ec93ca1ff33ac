// Package plan defines the production plan produced by script generation: an
// ordered list of scenes, each carrying declarative asset specs, plus hook
// variations and a shot list.
//
// Scenes are addressed by position. Asset specs carry stable identifiers of
// the form s<scene>-<medium>-<purpose>; Normalize derives and de-duplicates
// them so that the registry in package assets can key slots by ID.
package plan
