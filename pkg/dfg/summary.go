package dfg

import (
	"sort"
	"sync"

	"github.com/l3aro/go-flow-query/pkg/scope"
)

// ReceiverSlot is the slot index of `this` in ParamEffect.Aliases.
const ReceiverSlot = -1

// ParamEffect describes what a function does with one pointer slot.
type ParamEffect struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	// MayWrite is set when the function may store through the pointer.
	MayWrite bool `json:"may_write"`
	// FlowsToReturn is set when the returned pointer may point into the
	// object the slot points to.
	FlowsToReturn bool `json:"flows_to_return"`
	// Aliases lists the slots whose pointees may be stored into this slot's
	// pointee, so that after the call they may alias.
	Aliases []int `json:"aliases,omitempty"`
}

// Store is one location the function may leave written on exit, with the
// content in terms of the function's entry state.
type Store struct {
	Target uint32
	Value  Content
}

// Summary is the reusable effect of a function, applied at every call site.
type Summary struct {
	Func     *scope.Declaration
	Receiver *ParamEffect
	Params   []ParamEffect
	Returns  Content
	Stores   []Store
	// Conservative summaries stand in for functions whose effects are not
	// known: recursion, missing bodies.
	Conservative bool
	Approximate  bool
	Library      *LibraryFunction
	// effectsOnly marks summaries restored from the cache: they carry slot
	// effects but no stores.
	effectsOnly bool
}

// Effect returns the effect of slot i, ReceiverSlot for `this`.
func (s *Summary) Effect(i int) *ParamEffect {
	if i == ReceiverSlot {
		return s.Receiver
	}
	if i < 0 || i >= len(s.Params) {
		return nil
	}
	return &s.Params[i]
}

// ConservativeSummary assumes fn may write through every pointer slot and
// that every slot may alias every other one.
func ConservativeSummary(fn *scope.Declaration) *Summary {
	s := &Summary{Func: fn, Conservative: true}
	var slots []int
	if hasReceiver(fn) {
		slots = append(slots, ReceiverSlot)
	}
	for i := range fn.Params {
		slots = append(slots, i)
	}
	mk := func(i int, name string) ParamEffect {
		e := ParamEffect{Index: i, Name: name, MayWrite: true, FlowsToReturn: true}
		for _, j := range slots {
			if j != i {
				e.Aliases = append(e.Aliases, j)
			}
		}
		return e
	}
	if hasReceiver(fn) {
		r := mk(ReceiverSlot, "this")
		s.Receiver = &r
	}
	for i, p := range fn.Params {
		s.Params = append(s.Params, mk(i, p.Name))
	}
	s.Returns = Content{Pts: ExternalSet(), Vals: UnknownValue()}
	return s
}

func hasReceiver(fn *scope.Declaration) bool {
	return fn != nil && fn.Kind == scope.Method && !fn.Static
}

// slotOf returns the pointer slot whose entry pointee id lies under: the
// parameter p for *p, (*p).f and deeper chains, ReceiverSlot for *this.
func slotOf(locs *Locations, fn *scope.Declaration, params map[*scope.Declaration]int, id uint32) (int, bool) {
	loc := locs.Get(id)
	slot, found := 0, false
	for loc.Kind == LocField || loc.Kind == LocDeref {
		parent := locs.Get(loc.Parent)
		if loc.Kind == LocDeref {
			switch {
			case parent.Kind == LocVar:
				if i, ok := params[parent.Decl]; ok {
					slot, found = i, true
				}
			case parent.Kind == LocThis && parent.Decl == fn:
				slot, found = ReceiverSlot, true
			}
		}
		loc = parent
	}
	return slot, found
}

func paramIndex(fn *scope.Declaration) map[*scope.Declaration]int {
	out := make(map[*scope.Declaration]int, len(fn.Params))
	for i, p := range fn.Params {
		if p.Decl != nil {
			out[p.Decl] = i
		}
	}
	return out
}

// deriveEffects fills the per-slot effects of s from its stores and return.
func deriveEffects(locs *Locations, s *Summary) {
	fn := s.Func
	params := paramIndex(fn)
	effects := make(map[int]*ParamEffect)
	if hasReceiver(fn) {
		s.Receiver = &ParamEffect{Index: ReceiverSlot, Name: "this"}
		effects[ReceiverSlot] = s.Receiver
	}
	s.Params = make([]ParamEffect, len(fn.Params))
	for i, p := range fn.Params {
		s.Params[i] = ParamEffect{Index: i, Name: p.Name}
		effects[i] = &s.Params[i]
	}
	aliases := make(map[int]map[int]bool)
	for _, st := range s.Stores {
		i, ok := slotOf(locs, fn, params, st.Target)
		if !ok {
			continue
		}
		effects[i].MayWrite = true
		for _, id := range st.Value.Pts.IDs() {
			if j, ok := slotOf(locs, fn, params, id); ok && j != i {
				if aliases[i] == nil {
					aliases[i] = make(map[int]bool)
				}
				aliases[i][j] = true
			}
		}
	}
	for _, id := range s.Returns.Pts.IDs() {
		if i, ok := slotOf(locs, fn, params, id); ok {
			effects[i].FlowsToReturn = true
		}
	}
	for i, set := range aliases {
		for j := range set {
			effects[i].Aliases = append(effects[i].Aliases, j)
		}
		sort.Ints(effects[i].Aliases)
	}
}

type summaryEntry struct {
	summary *Summary
	level   int
}

// SummaryStore holds the summaries of one unit. Each function's summary is
// published once and read without locking afterwards.
type SummaryStore struct {
	m sync.Map
}

// NewSummaryStore creates an empty store.
func NewSummaryStore() *SummaryStore { return &SummaryStore{} }

// Publish records the summary of fn computed at a scheduling level. It
// reports false when fn already has one; the first summary is kept.
func (s *SummaryStore) Publish(fn *scope.Declaration, sum *Summary, level int) bool {
	_, loaded := s.m.LoadOrStore(fn, &summaryEntry{summary: sum, level: level})
	return !loaded
}

// Get returns the published summary of fn.
func (s *SummaryStore) Get(fn *scope.Declaration) (*Summary, bool) {
	v, ok := s.m.Load(fn)
	if !ok {
		return nil, false
	}
	return v.(*summaryEntry).summary, true
}

// before returns the summary of fn only when it was computed at a level
// lower than level. Functions of one level never see each other's results,
// which keeps a level's outcome independent of goroutine timing.
func (s *SummaryStore) before(fn *scope.Declaration, level int) (*Summary, bool) {
	v, ok := s.m.Load(fn)
	if !ok {
		return nil, false
	}
	e := v.(*summaryEntry)
	if e.level >= level {
		return nil, false
	}
	return e.summary, true
}

// All returns the published summaries ordered by declaration order.
func (s *SummaryStore) All() []*Summary {
	var out []*Summary
	s.m.Range(func(_, v any) bool {
		out = append(out, v.(*summaryEntry).summary)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Func.Seq < out[j].Func.Seq })
	return out
}
