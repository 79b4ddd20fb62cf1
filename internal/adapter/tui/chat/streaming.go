package chat

import "time"

// StreamSpeed controls how fast a reply is revealed in the transcript.
type StreamSpeed int

const (
	StreamInstant StreamSpeed = iota
	StreamFast
	StreamNormal
)

func (s StreamSpeed) String() string {
	switch s {
	case StreamInstant:
		return "instant"
	case StreamFast:
		return "fast"
	case StreamNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// Next cycles normal, fast, instant.
func (s StreamSpeed) Next() StreamSpeed {
	switch s {
	case StreamNormal:
		return StreamFast
	case StreamFast:
		return StreamInstant
	default:
		return StreamNormal
	}
}

// chunk returns runes revealed per tick and the tick interval. A zero chunk
// reveals the whole reply at once.
func (s StreamSpeed) chunk() (int, time.Duration) {
	switch s {
	case StreamInstant:
		return 0, 0
	case StreamFast:
		return 32, 16 * time.Millisecond
	default:
		return 8, 16 * time.Millisecond
	}
}

// typewriter reveals a reply progressively.
type typewriter struct {
	runes []rune
	pos   int
}

func (tw *typewriter) active() bool { return tw.runes != nil }

// advance reveals up to n more runes and reports whether the reply is complete.
func (tw *typewriter) advance(n int) (string, bool) {
	if n <= 0 || tw.pos+n >= len(tw.runes) {
		tw.pos = len(tw.runes)
	} else {
		tw.pos += n
	}
	return string(tw.runes[:tw.pos]), tw.pos == len(tw.runes)
}

func (tw *typewriter) reset() {
	tw.runes = nil
	tw.pos = 0
}
