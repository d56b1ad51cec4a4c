package faulty

// Entry is one outcome recorded in a circuit's history sample (spec §3).
// At is float64 Unix seconds per spec §9's forward-compatibility mandate.
type Entry struct {
	At      float64
	Success bool
}

// Sample is a bounded, newest-last ring of history entries. It is the
// in-process building block MemoryStorage uses; the
// networked backend keeps the equivalent list server-side (spec §4.2.2).
type Sample struct {
	entries []Entry
	max     int
}

// NewSample creates a Sample bounded to max entries (spec's
// max_sample_size, default 100).
func NewSample(max int) *Sample {
	if max < 1 {
		max = 1
	}
	return &Sample{max: max}
}

// Push appends an entry, trimming the oldest if the sample is full.
func (s *Sample) Push(e Entry) {
	s.entries = append(s.entries, e)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
}

// Entries returns the retained entries, oldest first.
func (s *Sample) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear empties the sample (used on a half-open probe's successful close).
func (s *Sample) Clear() {
	s.entries = nil
}

// Len reports the number of retained entries.
func (s *Sample) Len() int { return len(s.entries) }

// WindowStats computes sample_size and failure_rate over entries newer
// than windowStart (spec §4.4).
func WindowStats(entries []Entry, windowStart float64) (sampleSize int, failureRate float64) {
	var failures int
	for _, e := range entries {
		if e.At > windowStart {
			sampleSize++
			if !e.Success {
				failures++
			}
		}
	}
	if sampleSize == 0 {
		return 0, 0.0
	}
	return sampleSize, float64(failures) / float64(sampleSize)
}
