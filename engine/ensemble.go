package engine

import (
	"fmt"

	"github.com/harborwatch/maritime-scene-service/graph"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// Ensemble joins two engines that run side by side on paired inputs, one
// tuned for day frames and one for night frames.
type Ensemble struct {
	Day   Engine
	Night Engine
}

// NewEnsemble pairs two engines. Both must share precision; a mismatch is a
// configuration fault, not something to paper over at run time.
func NewEnsemble(day, night Engine) (*Ensemble, error) {
	if day.FP16() != night.FP16() {
		return nil, &graph.ConfigurationError{Msg: "ensembled models must share precision"}
	}
	return &Ensemble{Day: day, Night: night}, nil
}

// Forward runs both members on their respective batches.
func (e *Ensemble) Forward(day, night *tensor.Tensor) (dayOut, nightOut []*tensor.Tensor, err error) {
	dayOut, err = e.Day.Forward(day)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: day member: %w", err)
	}
	nightOut, err = e.Night.Forward(night)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: night member: %w", err)
	}
	return dayOut, nightOut, nil
}

// Close closes both members, returning the first error.
func (e *Ensemble) Close() error {
	errDay := e.Day.Close()
	errNight := e.Night.Close()
	if errDay != nil {
		return errDay
	}
	return errNight
}
