package dfg

import "sort"

// Content is what a location holds: the locations it points to and the
// scalar values it may have.
type Content struct {
	Pts  AliasSet
	Vals ValueSet
}

// Clone returns an independent copy.
func (c Content) Clone() Content {
	return Content{Pts: c.Pts.Clone(), Vals: c.Vals.Clone()}
}

// Union merges o into c and reports whether c grew.
func (c *Content) Union(o Content, limit int) bool {
	a := c.Pts.Union(o.Pts)
	b := c.Vals.Union(o.Vals, limit)
	return a || b
}

// Equal reports whether both contents hold the same members.
func (c Content) Equal(o Content) bool {
	return c.Pts.Equal(o.Pts) && c.Vals.Equal(o.Vals)
}

func (c Content) withApproximate() Content {
	c.Pts.Approximate = true
	return c
}

// State maps written locations to their content at one program point.
// Locations never written hold a default the analyzer derives from the
// location itself.
type State struct {
	m map[uint32]Content
}

func newState() *State { return &State{m: make(map[uint32]Content)} }

func (s *State) clone() *State {
	out := &State{m: make(map[uint32]Content, len(s.m))}
	for k, v := range s.m {
		out.m[k] = v.Clone()
	}
	return out
}

func (s *State) get(id uint32) (Content, bool) {
	c, ok := s.m[id]
	return c, ok
}

func (s *State) set(id uint32, c Content) { s.m[id] = c }

// keys returns the written locations in ascending order.
func (s *State) keys() []uint32 {
	out := make([]uint32, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// equal compares two states by their written locations.
func (s *State) equal(o *State) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k, v := range s.m {
		w, ok := o.m[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}
