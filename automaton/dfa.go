// Package automaton implements the approximate term matching used for
// fuzzy queries and spelling correction: a Levenshtein automaton is
// intersected with a sorted term dictionary by alternating between
// "next accepted string" queries on the automaton and seeks on a term
// cursor, so the work is proportional to the number of near matches
// rather than the dictionary size.
package automaton

// DFA is a deterministic byte automaton. A state may carry a default
// transition that applies to any byte without an explicit edge.
type DFA struct {
	transitions []map[byte]int
	labels      [][]byte // sorted edge labels per state
	defaults    []int    // -1 when the state has no default edge
	finals      []bool
}

// step returns the successor of state on label, or -1 for a dead end.
func (d *DFA) step(state int, label byte) int {
	if next, ok := d.transitions[state][label]; ok {
		return next
	}

	return d.defaults[state]
}

// Accepts reports whether the automaton accepts s.
func (d *DFA) Accepts(s []byte) bool {
	state := 0
	for _, label := range s {
		if state = d.step(state, label); state < 0 {
			return false
		}
	}

	return d.finals[state]
}

// findNextEdge returns the smallest outgoing label >= after+1 (or >= 0
// when after is negative). A state with a default edge accepts every
// label.
func (d *DFA) findNextEdge(state, after int) (byte, bool) {
	start := after + 1
	if start > 0xff {
		return 0, false
	}
	if d.defaults[state] >= 0 {
		return byte(start), true
	}
	for _, label := range d.labels[state] {
		if int(label) >= start {
			return label, true
		}
	}

	return 0, false
}

// NextValidString returns the lexicographically smallest accepted string
// >= s, or false when no accepted string sorts at or after s.
func (d *DFA) NextValidString(s []byte) ([]byte, bool) {
	type frame struct {
		pathLen int
		state   int
		label   int // byte consumed from this state, -1 for none
	}

	var stack []frame
	state := 0
	walked := 0
	for ; walked < len(s); walked++ {
		stack = append(stack, frame{walked, state, int(s[walked])})
		if state = d.step(state, s[walked]); state < 0 {
			break
		}
	}
	if state >= 0 {
		if d.finals[state] {
			out := make([]byte, len(s))
			copy(out, s)

			return out, true
		}
		stack = append(stack, frame{len(s), state, -1})
	}

	// Backtrack: at each frame try the next larger edge, then descend
	// along smallest edges until a final state appears.
	path := make([]byte, len(s))
	copy(path, s)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		path = path[:top.pathLen]

		label, ok := d.findNextEdge(top.state, top.label)
		if !ok {
			continue
		}
		path = append(path, label)
		next := d.step(top.state, label)
		if d.finals[next] {
			out := make([]byte, len(path))
			copy(out, path)

			return out, true
		}
		stack = append(stack, frame{len(path), next, -1})
	}

	return nil, false
}
