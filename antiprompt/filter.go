// Package antiprompt truncates streamed model output at configured stop
// markers. The Filter buffers just enough trailing text to catch a marker
// that the runtime splits across several chunks, so the concatenation of
// everything it emits never contains a marker.
package antiprompt

import (
	"bytes"
	"unicode/utf8"
)

// DefaultMarkers are the turn markers of common chat templates.
var DefaultMarkers = []string{"User:", "Assistant", "<|end_of_turn|>"}

const DefaultRedundancyLength = 5

// Filter is a streaming transform over raw model chunks. It is not safe for
// concurrent use; one Filter serves one generation.
//
// The pending window holds text that has been received but not yet proven
// safe. After every Write the window is at most the longest pending partial
// match plus the redundancy margin, so memory and per-chunk work stay bounded
// by the marker lengths rather than by the length of the output.
type Filter struct {
	markers    [][]byte
	maxLen     int
	redundancy int

	window []byte
	done   bool
}

// New creates a Filter for the given markers. Empty markers and duplicates
// are dropped. redundancy is the number of extra trailing bytes withheld
// beyond any partial match, absorbing runtimes that re-emit boundary text.
func New(markers []string, redundancy int) *Filter {
	if redundancy < 0 {
		redundancy = 0
	}

	f := &Filter{redundancy: redundancy}
	seen := make(map[string]bool, len(markers))
	for _, m := range markers {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		f.markers = append(f.markers, []byte(m))
		f.maxLen = max(f.maxLen, len(m))
	}

	f.window = make([]byte, 0, f.maxLen+redundancy+64)
	return f
}

// Markers returns the active stop markers.
func (f *Filter) Markers() []string {
	out := make([]string, len(f.markers))
	for i, m := range f.markers {
		out[i] = string(m)
	}
	return out
}

// Write consumes one raw chunk and returns the text now known to be safe.
// When stop is true a marker was found: safe holds the final text before it
// and the caller must stop requesting chunks.
func (f *Filter) Write(chunk string) (safe string, stop bool) {
	if f.done {
		return "", true
	}

	f.window = append(f.window, chunk...)

	if p := f.earliest(); p >= 0 {
		safe = string(f.window[:p])
		f.window = f.window[:0]
		f.done = true
		return safe, true
	}

	hold := f.partial() + f.redundancy
	cut := boundary(f.window, max(len(f.window)-hold, 0))

	safe = string(f.window[:cut])
	n := copy(f.window, f.window[cut:])
	f.window = f.window[:n]
	return safe, false
}

// Flush returns whatever is still pending once the runtime's sequence ends
// without a marker. A Filter that already stopped returns "".
func (f *Filter) Flush() string {
	if f.done {
		return ""
	}
	rest := string(f.window)
	f.window = f.window[:0]
	f.done = true
	return rest
}

// Done reports whether the filter has terminated, either on a marker or a
// Flush.
func (f *Filter) Done() bool {
	return f.done
}

// Pending returns the number of bytes currently withheld.
func (f *Filter) Pending() int {
	return len(f.window)
}

// Reset clears all state so the Filter can serve another generation.
func (f *Filter) Reset() {
	f.window = f.window[:0]
	f.done = false
}

// earliest returns the lowest offset at which any complete marker starts in
// the window, or -1.
func (f *Filter) earliest() int {
	best := -1
	for _, m := range f.markers {
		if i := bytes.Index(f.window, m); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// partial returns the length of the longest window suffix that is a strict
// prefix of some marker.
func (f *Filter) partial() int {
	for k := min(f.maxLen-1, len(f.window)); k > 0; k-- {
		tail := f.window[len(f.window)-k:]
		for _, m := range f.markers {
			if len(m) > k && bytes.Equal(m[:k], tail) {
				return k
			}
		}
	}
	return 0
}

// boundary moves cut left until it does not split a UTF-8 sequence, including
// an incomplete sequence at the very end of b.
func boundary(b []byte, cut int) int {
	if cut < len(b) {
		floor := max(cut-utf8.UTFMax+1, 0)
		for cut > floor && !utf8.RuneStart(b[cut]) {
			cut--
		}
		return cut
	}

	start := len(b) - 1
	for start > 0 && start > len(b)-utf8.UTFMax && !utf8.RuneStart(b[start]) {
		start--
	}
	if start >= 0 && !utf8.FullRune(b[start:]) {
		return start
	}
	return cut
}
