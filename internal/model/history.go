package model

import "time"

const defaultHistoryCap = 60

// ThroughputPoint is a single timestamped sample stored in the ring buffer.
type ThroughputPoint struct {
	Timestamp time.Time
	URLRate   float64 // URLs processed per second
	FileRate  float64 // files found per second
}

// ThroughputHistory is a fixed-size ring buffer of ThroughputPoints.
// When the buffer is full, new pushes overwrite the oldest entry.
type ThroughputHistory struct {
	buf  []ThroughputPoint
	head int // index of the next write position
	size int // number of valid entries
}

// NewThroughputHistory creates a ThroughputHistory with the given capacity.
// If capacity <= 0, defaultHistoryCap (60) is used.
func NewThroughputHistory(capacity int) *ThroughputHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &ThroughputHistory{
		buf: make([]ThroughputPoint, capacity),
	}
}

// Push appends a new point, overwriting the oldest if full.
func (h *ThroughputHistory) Push(p ThroughputPoint) {
	h.buf[h.head] = p
	h.head = (h.head + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// Len returns the number of valid entries.
func (h *ThroughputHistory) Len() int {
	return h.size
}

// Clear resets the history to empty.
func (h *ThroughputHistory) Clear() {
	h.head = 0
	h.size = 0
}

// Last returns the most recent point, if any.
func (h *ThroughputHistory) Last() (ThroughputPoint, bool) {
	if h.size == 0 {
		return ThroughputPoint{}, false
	}
	return h.buf[(h.head-1+len(h.buf))%len(h.buf)], true
}

// URLRates returns the URL rates in chronological order (oldest first).
func (h *ThroughputHistory) URLRates() []float64 {
	return h.values(func(p ThroughputPoint) float64 { return p.URLRate })
}

// FileRates returns the file rates in chronological order (oldest first).
func (h *ThroughputHistory) FileRates() []float64 {
	return h.values(func(p ThroughputPoint) float64 { return p.FileRate })
}

func (h *ThroughputHistory) values(field func(ThroughputPoint) float64) []float64 {
	out := make([]float64, h.size)
	// oldest entry sits at (head - size + cap) % cap
	start := (h.head - h.size + len(h.buf)) % len(h.buf)
	for i := 0; i < h.size; i++ {
		out[i] = field(h.buf[(start+i)%len(h.buf)])
	}
	return out
}
