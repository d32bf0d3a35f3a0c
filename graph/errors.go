package graph

import "fmt"

// GraphError reports a wiring-integrity fault: a node depends on a position
// that was never retained or never executed. It signals an assembly-time bug
// and is fatal, never retryable.
type GraphError struct {
	Pos int // position of the offending node
	Ref int // the referenced position, or RefRunning
	Msg string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph: node %d references position %d: %s", e.Pos, e.Ref, e.Msg)
}

// ConfigurationError reports an invalid model configuration discovered at
// load or assembly time: no landmark node to resolve a cutoff, unreadable
// channel widths, missing model artifacts, or mismatched precision between
// ensembled models.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}
