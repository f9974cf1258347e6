package cpg

import "fmt"

// Role index conventions, shared by sources, sinks and semantic rules:
// -1 is the return value, 0 is the receiver, positive values are positional
// arguments starting at 1.
const (
	IndexReturn   = -1
	IndexReceiver = 0
)

// Source marks a function (at a specific parameter or its return value) that
// introduces untrusted data into the program.
type Source struct {
	Function
	Index int `json:"index"`
}

// Sink marks a function (at a specific parameter) that consumes data in a way
// that is dangerous when the data is attacker controlled.
type Sink struct {
	Function
	Index int `json:"index"`
}

// NewSource builds a Source from a classified function and a role index.
func NewSource(fn *Function, index int) Source {
	return Source{Function: *fn, Index: index}
}

// NewSink builds a Sink from a classified function and a role index.
func NewSink(fn *Function, index int) Sink {
	return Sink{Function: *fn, Index: index}
}

// Query returns the engine traversal selecting the graph nodes where taint
// originates. For a parameter source the output side of the parameter is
// chosen, because that is where data written by the callee becomes visible.
func (s Source) Query(cpgVar string) (string, error) {
	switch {
	case s.Index == IndexReturn:
		return fmt.Sprintf("%s.methodReturn", s.MethodQuery(cpgVar)), nil
	case s.Index > 0:
		return fmt.Sprintf("%s.parameter.index(%d).asOutput", s.MethodQuery(cpgVar), s.Index), nil
	case s.Index == IndexReceiver:
		return "", fmt.Errorf("receiver sources are not supported for %s", s.FullName)
	default:
		return "", fmt.Errorf("invalid source index %d for %s", s.Index, s.FullName)
	}
}

// Query returns the engine traversal selecting the graph nodes where tainted
// data is consumed.
func (s Sink) Query(cpgVar string) (string, error) {
	switch {
	case s.Index == IndexReturn:
		return fmt.Sprintf("%s.methodReturn", s.MethodQuery(cpgVar)), nil
	case s.Index > 0:
		return fmt.Sprintf("%s.parameter.index(%d)", s.MethodQuery(cpgVar), s.Index), nil
	case s.Index == IndexReceiver:
		return "", fmt.Errorf("receiver sinks are not supported for %s", s.FullName)
	default:
		return "", fmt.Errorf("invalid sink index %d for %s", s.Index, s.FullName)
	}
}
