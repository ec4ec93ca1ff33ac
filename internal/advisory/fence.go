package advisory

import "strings"

const (
	openFence  = "```content_update"
	closeFence = "```"
)

// fenceSplitter separates streamed prose from the first content_update
// block. Markers may be split across deltas, so a tail that could begin a
// marker is held back until the next delta decides it.
type fenceSplitter struct {
	pending string
	inside  bool
	done    bool
	block   strings.Builder
}

// feed consumes a delta and returns the prose that is safe to emit.
func (f *fenceSplitter) feed(delta string) string {
	f.pending += delta
	var prose strings.Builder
	for {
		if f.inside {
			idx := strings.Index(f.pending, closeFence)
			if idx < 0 {
				keep := holdBack(f.pending, closeFence)
				f.block.WriteString(f.pending[:len(f.pending)-keep])
				f.pending = f.pending[len(f.pending)-keep:]
				return prose.String()
			}
			f.block.WriteString(f.pending[:idx])
			f.pending = f.pending[idx+len(closeFence):]
			f.inside = false
			f.done = true
			continue
		}
		if f.done {
			prose.WriteString(f.pending)
			f.pending = ""
			return prose.String()
		}
		idx := strings.Index(f.pending, openFence)
		if idx < 0 {
			keep := holdBack(f.pending, openFence)
			prose.WriteString(f.pending[:len(f.pending)-keep])
			f.pending = f.pending[len(f.pending)-keep:]
			return prose.String()
		}
		prose.WriteString(f.pending[:idx])
		f.pending = f.pending[idx+len(openFence):]
		f.inside = true
	}
}

// finish flushes held-back prose and returns the block, if one was opened.
// An unterminated block is still returned so truncated replies can be tried.
func (f *fenceSplitter) finish() (prose string, block string, found bool) {
	if f.inside {
		f.block.WriteString(f.pending)
		f.pending = ""
		f.inside = false
		f.done = true
	}
	prose, f.pending = f.pending, ""
	return prose, strings.TrimSpace(f.block.String()), f.done
}

// holdBack returns the length of the longest suffix of s that is a proper
// prefix of marker.
func holdBack(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
