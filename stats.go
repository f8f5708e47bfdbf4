package ringpool

// Stats is a point-in-time view of a ring. Fields are read one at a
// time, so they are not mutually consistent under load.
type Stats struct {
	Capacity int64
	// Cursor is the highest published sequence.
	Cursor int64
	// Gating is the cursor of the slowest group of the last stage.
	Gating int64
	// ProducerStalls counts claims that had to wait for a free slot.
	ProducerStalls int64
	Groups         []GroupStats
}

// GroupStats describes one consumer group.
type GroupStats struct {
	Index     int
	Stage     int
	Kind      string
	Workers   int
	Cursor    int64
	Processed int64
	Faults    int64
}

// Published returns the number of published items.
func (s Stats) Published() int64 { return s.Cursor + 1 }

// Stats returns the current counters of the ring.
func (r *Ring[T]) Stats() Stats {
	s := Stats{
		Capacity:       r.capacity,
		Cursor:         r.cursor.Load(),
		Gating:         r.gating.Load(),
		ProducerStalls: r.stalls.Load(),
		Groups:         make([]GroupStats, len(r.groups)),
	}
	for i, g := range r.groups {
		s.Groups[i] = GroupStats{
			Index:     g.index,
			Stage:     g.stage,
			Kind:      g.kind,
			Workers:   len(g.runners),
			Cursor:    g.cursor.Load(),
			Processed: g.processed(),
			Faults:    g.faults.Value(),
		}
	}
	return s
}
