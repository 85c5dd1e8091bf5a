package rolling

// Window is a fixed-capacity circular sample buffer. It is not safe for
// concurrent use; the Aggregator serializes access.
type Window struct {
	samples []float64
	next    int
	count   int
}

// NewWindow creates a window holding up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{samples: make([]float64, capacity)}
}

// Push appends v, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

// Len returns the number of samples held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.samples) }

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	start := (w.next - w.count + len(w.samples)) % len(w.samples)
	for i := 0; i < w.count; i++ {
		out[i] = w.samples[(start+i)%len(w.samples)]
	}
	return out
}

// Stats summarizes a window.
type Stats struct {
	Count    int     `json:"count"`
	Capacity int     `json:"capacity"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Latest   float64 `json:"latest"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Stats computes the summary of the current samples.
func (w *Window) Stats() Stats {
	s := Stats{Count: w.count, Capacity: len(w.samples)}
	if w.count == 0 {
		return s
	}
	for i, v := range w.Values() {
		s.Sum += v
		if i == 0 || v < s.Min {
			s.Min = v
		}
		if i == 0 || v > s.Max {
			s.Max = v
		}
	}
	s.Mean = s.Sum / float64(w.count)
	s.Latest = w.samples[(w.next-1+len(w.samples))%len(w.samples)]
	return s
}
