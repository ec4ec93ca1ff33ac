// Package merge applies structured plan updates from the advisory channel.
//
// Four update kinds exist: a partial edit of one scene, a full script
// replacement, a hook list replacement, and a shot list replacement. Apply is
// copy-on-write: it returns a new plan and leaves the input untouched, so a
// rejected update never disturbs live state. Asset specs survive edits that
// do not explicitly replace them; an advisory rewrite must never drop assets
// that were already staged or generated.
package merge
