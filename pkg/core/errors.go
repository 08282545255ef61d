package core

import "fmt"

// ConfigurationError reports an invalid engine option or a vector whose
// dimension does not match the configured one. It is fatal at construction.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// NumericInstabilityError reports a NaN or ±Inf produced during an update.
// Engines recover from it by keeping their last known-good state.
type NumericInstabilityError struct {
	Step   int
	Index  int
	Value  float64
	Reason string
}

func (e *NumericInstabilityError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("numeric instability at step %d (component %d = %v): %s", e.Step, e.Index, e.Value, e.Reason)
	}
	return fmt.Sprintf("numeric instability at step %d: %s", e.Step, e.Reason)
}

// EmptyHistoryError signals that not enough samples exist yet. It means
// "not yet", not failure.
type EmptyHistoryError struct {
	Required  int
	Available int
}

func (e *EmptyHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need %d samples, have %d", e.Required, e.Available)
}

// TopologyError reports a graph that references unknown or duplicate nodes,
// or an edge with an out-of-range coupling weight.
type TopologyError struct {
	NodeID string
	Source string
	Target string
	Reason string
}

func (e *TopologyError) Error() string {
	switch {
	case e.Source != "" || e.Target != "":
		return fmt.Sprintf("topology error: edge %s -> %s: %s", e.Source, e.Target, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("topology error: node %q: %s", e.NodeID, e.Reason)
	default:
		return "topology error: " + e.Reason
	}
}
