package servo

import (
	"strconv"
	"strings"
)

type ResponseKind int

const (
	Accept ResponseKind = iota
	Reject
	End
	Override
)

func (k ResponseKind) String() string {
	switch k {
	case Reject:
		return "reject"
	case End:
		return "end"
	case Override:
		return "override"
	default:
		return "accept"
	}
}

// Response is the operator's verdict on one probe.
type Response struct {
	Kind  ResponseKind
	Value int
}

// ParseResponse classifies an operator answer: "n" rejects the probe, "end"
// finishes, a positive integer overrides the next probe and anything else
// accepts it.
func ParseResponse(input string) Response {
	in := strings.ToLower(strings.TrimSpace(input))
	switch in {
	case "n":
		return Response{Kind: Reject}
	case "end":
		return Response{Kind: End}
	}
	if v, err := strconv.Atoi(in); err == nil && v > 0 {
		return Response{Kind: Override, Value: v}
	}
	return Response{Kind: Accept}
}

// Sweep is the state of one manually steered search for a pulse extreme.  A
// positive Delta searches for the maximum, a negative one for the minimum.
type Sweep struct {
	TestValue  int
	Delta      int
	ResetValue int

	done bool
}

func NewSweep(start, delta int) *Sweep {
	return &Sweep{
		TestValue:  start,
		Delta:      delta,
		ResetValue: start - delta,
	}
}

// Probe is the value to try next.
func (s *Sweep) Probe() int {
	return s.TestValue
}

func (s *Sweep) Done() bool {
	return s.done
}

// Result is the bound found; only meaningful once Done.
func (s *Sweep) Result() int {
	return s.TestValue
}

// BackOff is the last position known to be safe: one step inside the result.
func (s *Sweep) BackOff() int {
	return s.TestValue - s.Delta
}

// Apply advances the search with the operator's response and reports whether
// it has converged.
func (s *Sweep) Apply(r Response) bool {
	if s.done {
		return true
	}
	if r.Kind == Reject {
		s.TestValue -= s.Delta
		s.Delta = halve(s.Delta)
	}
	if r.Kind == End || abs(s.Delta) <= 1 {
		s.done = true
		return true
	}
	switch r.Kind {
	case Override:
		s.TestValue = r.Value
	case Accept:
		s.TestValue += s.Delta
	}
	return false
}

// halve rounds towards minus infinity, so -3 becomes -2.
func halve(d int) int {
	if d < 0 {
		return -((-d + 1) / 2)
	}
	return d / 2
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
