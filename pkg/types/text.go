package types

import (
	"sort"
	"strconv"
	"strings"
)

// Weight is the importance tier of a lexeme
type Weight byte

const (
	// WeightA marks primary fields (event title, venue name)
	WeightA Weight = 'A'
	// WeightB marks secondary fields (event description)
	WeightB Weight = 'B'
)

// Lexeme is one normalized term at one weight tier with the positions it occurred at
type Lexeme struct {
	Term      string
	Weight    Weight
	Positions []int
}

// TextRepresentation is a weighted token multiset derived from text fields.
// Lexemes are sorted by term, then weight.
type TextRepresentation struct {
	Lexemes []Lexeme
}

// Empty reports whether no terms survived analysis
func (r TextRepresentation) Empty() bool {
	return len(r.Lexemes) == 0
}

// Terms returns the space-joined terms of one tier, in position order,
// repeated once per occurrence.
func (r TextRepresentation) Terms(w Weight) string {
	type occ struct {
		pos  int
		term string
	}
	var occs []occ
	for _, lx := range r.Lexemes {
		if lx.Weight != w {
			continue
		}
		for _, p := range lx.Positions {
			occs = append(occs, occ{pos: p, term: lx.Term})
		}
	}
	sort.Slice(occs, func(i, j int) bool {
		return occs[i].pos < occs[j].pos
	})
	terms := make([]string, len(occs))
	for i, o := range occs {
		terms[i] = o.term
	}
	return strings.Join(terms, " ")
}

// String renders the representation in tsvector form, e.g. 'concert':1A 'live':3B
func (r TextRepresentation) String() string {
	var b strings.Builder
	for i, lx := range r.Lexemes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		b.WriteString(lx.Term)
		b.WriteString("':")
		for j, p := range lx.Positions {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(p))
			b.WriteByte(byte(lx.Weight))
		}
	}
	return b.String()
}
