package assets

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scriptlab/internal/services"
)

// ReferenceReleaser frees local data held for a temporary reference.
type ReferenceReleaser interface {
	Release(ref Reference)
}

// ReleaserFunc adapts a function to ReferenceReleaser.
type ReleaserFunc func(ref Reference)

// Release calls f.
func (f ReleaserFunc) Release(ref Reference) {
	f(ref)
}

type slot struct {
	refs     []Reference
	result   *GeneratedAsset
	inFlight bool
	token    uint64
}

func (s *slot) state() State {
	switch {
	case s.result != nil:
		return StateReady
	case len(s.refs) > 0:
		return StateReferenced
	default:
		return StateEmpty
	}
}

// ticket authorizes one generation write for a slot.
type ticket struct {
	slotID string
	token  uint64
	refIDs map[string]struct{}
}

// Registry holds the slots of one workflow session.
type Registry struct {
	mu       sync.Mutex
	slots    map[string]*slot
	releaser ReferenceReleaser
	now      func() time.Time
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithReleaser sets the releaser used for temporary references.
func WithReleaser(r ReferenceReleaser) RegistryOption {
	return func(reg *Registry) {
		reg.releaser = r
	}
}

// WithClock overrides the registry clock.
func WithClock(now func() time.Time) RegistryOption {
	return func(reg *Registry) {
		if now != nil {
			reg.now = now
		}
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{slots: make(map[string]*slot), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure creates empty slots for ids that do not exist yet. Existing slots are
// left untouched, so slots orphaned by a shorter script keep their state.
func (r *Registry) Ensure(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.slotLocked(id)
	}
}

func (r *Registry) slotLocked(id string) *slot {
	s, ok := r.slots[id]
	if !ok {
		s = &slot{}
		r.slots[id] = s
	}
	return s
}

// Attach stages ref on the slot, creating the slot if needed. A ready slot
// keeps its result; the reference takes effect on the next generation. A
// missing reference ID is assigned.
func (r *Registry) Attach(id string, ref Reference) (Reference, error) {
	if strings.TrimSpace(id) == "" {
		return Reference{}, services.Wrap(services.ErrValidation, "assets", "attach", "slot id required", nil)
	}
	if strings.TrimSpace(ref.URL) == "" {
		return Reference{}, services.Wrap(services.ErrValidation, "assets", "attach", "reference url required", nil)
	}
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.Kind == "" {
		ref.Kind = ReferenceUpload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slotLocked(id)
	for _, existing := range s.refs {
		if existing.ID == ref.ID {
			return Reference{}, services.Wrap(services.ErrValidation, "assets", "attach", "duplicate reference id "+ref.ID, nil)
		}
	}
	s.refs = append(s.refs, ref)
	return ref, nil
}

// Remove drops a staged reference and releases its temporary data.
func (r *Registry) Remove(id, refID string) error {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		r.mu.Unlock()
		return services.Wrap(services.ErrNotFound, "assets", "remove reference", "unknown slot "+id, nil)
	}
	idx := -1
	for i, ref := range s.refs {
		if ref.ID == refID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return services.Wrap(services.ErrNotFound, "assets", "remove reference", "unknown reference "+refID, nil)
	}
	removed := s.refs[idx]
	s.refs = append(s.refs[:idx:idx], s.refs[idx+1:]...)
	if len(s.refs) == 0 {
		s.refs = nil
	}
	r.mu.Unlock()

	r.release([]Reference{removed})
	return nil
}

// Clear drops the slot's result and invalidates any generation in flight.
// Staged references are kept, so a slot with references becomes referenced
// and one without becomes empty.
func (r *Registry) Clear(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return services.Wrap(services.ErrNotFound, "assets", "clear", "unknown slot "+id, nil)
	}
	s.result = nil
	s.inFlight = false
	s.token++
	return nil
}

// MarkUploaded installs a user-supplied file as the slot's result. It is
// rejected while a generation is in flight.
func (r *Registry) MarkUploaded(id string, url string, metadata map[string]string) (SlotView, error) {
	if strings.TrimSpace(url) == "" {
		return SlotView{}, services.Wrap(services.ErrValidation, "assets", "mark uploaded", "url required", nil)
	}
	r.mu.Lock()
	s := r.slotLocked(id)
	if s.inFlight {
		r.mu.Unlock()
		return SlotView{}, services.Wrap(services.ErrSlotBusy, "assets", "mark uploaded", "generation in flight for "+id, nil)
	}
	s.token++
	s.result = &GeneratedAsset{
		URL:        url,
		Provenance: ProvenanceUpload,
		Metadata:   copyMetadata(metadata),
		CreatedAt:  r.now().UTC(),
	}
	consumed := s.refs
	s.refs = nil
	view := viewOf(id, s)
	r.mu.Unlock()

	r.release(consumed)
	return view, nil
}

// Slot returns a copy of the slot with id.
func (r *Registry) Slot(id string) (SlotView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return SlotView{}, false
	}
	return viewOf(id, s), true
}

// Slots returns copies of every slot sorted by ID.
func (r *Registry) Slots() []SlotView {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SlotView, 0, len(r.slots))
	for id, s := range r.slots {
		out = append(out, viewOf(id, s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the persistable state of every slot sorted by ID.
func (r *Registry) Snapshot() []SlotSnapshot {
	views := r.Slots()
	out := make([]SlotSnapshot, 0, len(views))
	for _, v := range views {
		out = append(out, SlotSnapshot{ID: v.ID, References: v.References, Result: v.Result})
	}
	return out
}

// Restore replaces all slots with snapshots. Restored slots are never in
// flight. A slot that already exists keeps counting its request tokens, so a
// generation issued before the restore cannot complete into it.
func (r *Registry) Restore(snapshots []SlotSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.slots
	r.slots = make(map[string]*slot, len(snapshots))
	for _, snap := range snapshots {
		if snap.ID == "" {
			continue
		}
		s := &slot{refs: append([]Reference(nil), snap.References...)}
		if len(s.refs) == 0 {
			s.refs = nil
		}
		if snap.Result != nil {
			result := *snap.Result
			result.Metadata = copyMetadata(snap.Result.Metadata)
			s.result = &result
		}
		if old, ok := prev[snap.ID]; ok {
			s.token = old.token + 1
		}
		r.slots[snap.ID] = s
	}
}

// Retain keeps the slots named in ids, drops every other slot, and creates
// empty slots for ids not present yet. Kept slots are untouched, including
// any generation in flight. Temporary references of dropped slots are
// released.
func (r *Registry) Retain(ids ...string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	r.mu.Lock()
	var dropped []Reference
	for id, s := range r.slots {
		if _, ok := keep[id]; !ok {
			dropped = append(dropped, s.refs...)
			delete(r.slots, id)
		}
	}
	for _, id := range ids {
		r.slotLocked(id)
	}
	r.mu.Unlock()

	r.release(dropped)
}

// begin marks the slot in flight and returns a ticket plus the staged
// references at the time of the request.
func (r *Registry) begin(id string) (ticket, []Reference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slotLocked(id)
	if s.inFlight {
		return ticket{}, nil, services.Wrap(services.ErrSlotBusy, "assets", "generate", "generation already in flight for "+id, nil)
	}
	s.inFlight = true
	s.token++
	t := ticket{slotID: id, token: s.token, refIDs: make(map[string]struct{}, len(s.refs))}
	for _, ref := range s.refs {
		t.refIDs[ref.ID] = struct{}{}
	}
	return t, append([]Reference(nil), s.refs...), nil
}

// complete installs result if t is still current. The references the request
// was issued with are consumed and their temporary data released; references
// staged while the request was in flight stay attached.
func (r *Registry) complete(t ticket, result GeneratedAsset) (SlotView, error) {
	r.mu.Lock()
	s, ok := r.slots[t.slotID]
	if !ok || s.token != t.token {
		r.mu.Unlock()
		return SlotView{}, services.Wrap(services.ErrStaleWrite, "assets", "complete", "slot "+t.slotID+" changed since request", nil)
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = r.now().UTC()
	}
	result.Metadata = copyMetadata(result.Metadata)
	s.result = &result
	var consumed, kept []Reference
	for _, ref := range s.refs {
		if _, used := t.refIDs[ref.ID]; used {
			consumed = append(consumed, ref)
		} else {
			kept = append(kept, ref)
		}
	}
	s.refs = kept
	s.inFlight = false
	view := viewOf(t.slotID, s)
	r.mu.Unlock()

	r.release(consumed)
	return view, nil
}

// fail clears the in-flight flag if t is still current. References and any
// previous result are untouched.
func (r *Registry) fail(t ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[t.slotID]; ok && s.token == t.token {
		s.inFlight = false
	}
}

func (r *Registry) release(refs []Reference) {
	if r.releaser == nil {
		return
	}
	for _, ref := range refs {
		if ref.Temporary {
			r.releaser.Release(ref)
		}
	}
}

func viewOf(id string, s *slot) SlotView {
	view := SlotView{
		ID:         id,
		State:      s.state(),
		References: append([]Reference{}, s.refs...),
		InFlight:   s.inFlight,
	}
	if s.result != nil {
		result := *s.result
		result.Metadata = copyMetadata(s.result.Metadata)
		view.Result = &result
	}
	return view
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
