// Package assets owns per-session asset slot state and the orchestration of
// media generation for those slots.
//
// A Registry maps asset spec IDs to slots. Each slot holds staged references,
// an optional generated result, and an in-flight flag, and is observable in
// exactly one of three states: empty, referenced, or ready. Mutation happens
// only through the Registry methods; generation writes go through a ticket
// carrying a per-slot request token so that a completion arriving after the
// slot was cleared is discarded.
//
// The Orchestrator resolves which references steer a generation (slot
// references first, then session defaults), calls the media generator under a
// shared concurrency cap, and records the outcome in the registry.
package assets
