package automaton

import "sort"

// The Levenshtein NFA's states are (pos, edits) pairs: pos characters of
// the query matched with edits errors so far. Sets of NFA states become
// DFA states through subset construction.
type levBuilder struct {
	term   []byte
	k      int
	prefix int
}

func (b *levBuilder) encode(pos, edits int) int {
	return pos*(b.k+1) + edits
}

func (b *levBuilder) decode(id int) (pos, edits int) {
	return id / (b.k + 1), id % (b.k + 1)
}

// closure expands a state set with the free-insertion moves: from
// (pos, e) the automaton may skip term[pos] for one edit without
// consuming input.
func (b *levBuilder) closure(set map[int]struct{}) {
	frontier := make([]int, 0, len(set))
	for id := range set {
		frontier = append(frontier, id)
	}
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		pos, edits := b.decode(id)
		if pos >= b.prefix && pos < len(b.term) && edits < b.k {
			next := b.encode(pos+1, edits+1)
			if _, seen := set[next]; !seen {
				set[next] = struct{}{}
				frontier = append(frontier, next)
			}
		}
	}
}

// moveAny applies the transitions that accept an arbitrary input byte:
// consuming an extra byte in place (deletion from the query's view) and
// substituting for the expected byte.
func (b *levBuilder) moveAny(set map[int]struct{}, into map[int]struct{}) {
	for id := range set {
		pos, edits := b.decode(id)
		if pos < b.prefix || edits >= b.k {
			continue
		}
		into[b.encode(pos, edits+1)] = struct{}{}
		if pos < len(b.term) {
			into[b.encode(pos+1, edits+1)] = struct{}{}
		}
	}
}

// move applies one input byte to a state set: exact matches plus the
// any-byte transitions.
func (b *levBuilder) move(set map[int]struct{}, label byte) map[int]struct{} {
	out := make(map[int]struct{})
	for id := range set {
		pos, edits := b.decode(id)
		if pos < len(b.term) && b.term[pos] == label {
			out[b.encode(pos+1, edits)] = struct{}{}
		}
	}
	b.moveAny(set, out)
	b.closure(out)

	return out
}

func setKey(set map[int]struct{}) string {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	key := make([]byte, 0, len(ids)*2)
	for _, id := range ids {
		key = append(key, byte(id), byte(id>>8))
	}

	return string(key)
}

func (b *levBuilder) isFinal(set map[int]struct{}) bool {
	for id := range set {
		if pos, _ := b.decode(id); pos == len(b.term) {
			return true
		}
	}

	return false
}

// LevenshteinDFA builds the deterministic automaton accepting every
// byte string within maxDist edits (insert, delete, substitute) of term.
// The first prefixLen bytes must match exactly.
func LevenshteinDFA(term []byte, maxDist, prefixLen int) *DFA {
	if prefixLen > len(term) {
		prefixLen = len(term)
	}
	b := &levBuilder{term: term, k: maxDist, prefix: prefixLen}

	dfa := &DFA{}
	ids := make(map[string]int)

	start := map[int]struct{}{b.encode(0, 0): {}}
	b.closure(start)

	addState := func(set map[int]struct{}) int {
		key := setKey(set)
		if id, ok := ids[key]; ok {
			return id
		}
		id := len(dfa.transitions)
		ids[key] = id
		dfa.transitions = append(dfa.transitions, make(map[byte]int))
		dfa.labels = append(dfa.labels, nil)
		dfa.defaults = append(dfa.defaults, -1)
		dfa.finals = append(dfa.finals, b.isFinal(set))

		return id
	}

	type pending struct {
		id  int
		set map[int]struct{}
	}
	queue := []pending{{addState(start), start}}
	done := map[int]bool{}

	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if done[cur.id] {
			continue
		}
		done[cur.id] = true

		// The default transition covers every byte not named below.
		defSet := make(map[int]struct{})
		b.moveAny(cur.set, defSet)
		b.closure(defSet)
		if len(defSet) > 0 {
			id := addState(defSet)
			dfa.defaults[cur.id] = id
			queue = append(queue, pending{id, defSet})
		}

		// Explicit edges exist only for the bytes the query expects.
		seen := map[byte]bool{}
		for nfaID := range cur.set {
			pos, _ := b.decode(nfaID)
			if pos >= len(b.term) || seen[b.term[pos]] {
				continue
			}
			label := b.term[pos]
			seen[label] = true
			next := b.move(cur.set, label)
			if len(next) == 0 {
				continue
			}
			id := addState(next)
			dfa.transitions[cur.id][label] = id
			queue = append(queue, pending{id, next})
		}

		labels := make([]byte, 0, len(dfa.transitions[cur.id]))
		for label := range dfa.transitions[cur.id] {
			labels = append(labels, label)
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
		dfa.labels[cur.id] = labels
	}

	return dfa
}
