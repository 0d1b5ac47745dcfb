// Package placement picks the destination category for a new collaboration
// channel. Candidates are tried in their declared order and the first one
// with room wins, so earlier categories fill before later ones.
package placement

// Selector holds the fixed candidate order and the shared capacity cap.
type Selector struct {
	candidates []string
	capacity   int
}

func NewSelector(candidates []string, capacity int) *Selector {
	return &Selector{candidates: candidates, capacity: capacity}
}

// Select returns the first candidate whose live child count is strictly below
// capacity. The counts map carries the child count per category as read from
// the platform at call time; a category absent from the map counts as empty.
// The second return is false when every candidate is full.
func (s *Selector) Select(childCounts map[string]int) (string, bool) {
	for _, id := range s.candidates {
		if childCounts[id] < s.capacity {
			return id, true
		}
	}
	return "", false
}

// Candidates returns the managed category set in placement order.
func (s *Selector) Candidates() []string {
	return s.candidates
}
