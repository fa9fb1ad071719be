package terminal

import (
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// Registry is the ordered, append-only collection of every element of a
// terminal. Queries return copies so callers cannot mutate owned elements.
// A Registry is not safe for concurrent use; each simulation owns one.
type Registry struct {
	elements []*Element
	ids      map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Add appends e. Duplicate identifiers and invalid elements are rejected.
func (r *Registry) Add(e *Element) error {
	if e == nil {
		return errors.InvalidParam("element must not be nil")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, dup := r.ids[e.ID]; dup {
		return errors.Conflict("duplicate element id").WithDetail(e.ID)
	}
	cp := *e
	r.elements = append(r.elements, &cp)
	r.ids[e.ID] = struct{}{}
	return nil
}

// Len returns the number of elements.
func (r *Registry) Len() int { return len(r.elements) }

// All returns every element in insertion order.
func (r *Registry) All() []Element {
	out := make([]Element, len(r.elements))
	for i, e := range r.elements {
		out[i] = *e
	}
	return out
}

// FindByKind returns the elements of kind k in insertion order.
func (r *Registry) FindByKind(k Kind) []Element {
	var out []Element
	for _, e := range r.elements {
		if e.Kind == k {
			out = append(out, *e)
		}
	}
	return out
}

// OnlineBy returns the elements operating in year, in insertion order.
func (r *Registry) OnlineBy(year int) []Element {
	var out []Element
	for _, e := range r.elements {
		if e.OnlineIn(year) {
			out = append(out, *e)
		}
	}
	return out
}

// Count returns the number of elements of kind k, planned or online.
func (r *Registry) Count(k Kind) int {
	n := 0
	for _, e := range r.elements {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// PlannedCapacity sums Capacity over every element of kind k.
func (r *Registry) PlannedCapacity(k Kind) float64 {
	total := 0.0
	for _, e := range r.elements {
		if e.Kind == k {
			total += e.Capacity()
		}
	}
	return total
}

// KindReport summarises online versus planned elements of one kind.
type KindReport struct {
	Kind            Kind    `json:"kind"`
	Year            int     `json:"year"`
	Online          int     `json:"online"`
	Planned         int     `json:"planned"`
	OnlineCapacity  float64 `json:"online_capacity"`
	PlannedCapacity float64 `json:"planned_capacity"`
}

// Report returns the online/planned counts and capacities of kind k in year.
func (r *Registry) Report(k Kind, year int) KindReport {
	rep := KindReport{Kind: k, Year: year}
	for _, e := range r.elements {
		if e.Kind != k {
			continue
		}
		rep.Planned++
		rep.PlannedCapacity += e.Capacity()
		if e.OnlineIn(year) {
			rep.Online++
			rep.OnlineCapacity += e.Capacity()
		}
	}
	return rep
}
