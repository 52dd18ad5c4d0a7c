// Package rapid drives a bag of uint16 values with seeded random operations
// and checks every result against the values it inserted.
package rapid

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Action is one driver operation.
type Action int

// Driver actions.
const (
	Insert Action = iota
	Remove
	Lookup

	actionCount
)

// AllActions lists every action in declaration order.
var AllActions = []Action{Insert, Remove, Lookup}

// ErrInvalidWeights is returned when no action can ever be chosen.
var ErrInvalidWeights = errors.New("rapid: weights must be non-negative with a positive sum")

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Lookup:
		return "lookup"
	}

	return fmt.Sprintf("action(%d)", int(a))
}

// Weights sets the relative frequency of each action.
type Weights struct {
	Insert int `json:"insert" yaml:"insert"`
	Remove int `json:"remove" yaml:"remove"`
	Lookup int `json:"lookup" yaml:"lookup"`
}

// EqualWeights chooses every action equally often.
var EqualWeights = Weights{Insert: 1, Remove: 1, Lookup: 1}

func (w Weights) total() int {
	return w.Insert + w.Remove + w.Lookup
}

// Validate reports whether the weights can drive a run.
func (w Weights) Validate() error {
	if w.Insert < 0 || w.Remove < 0 || w.Lookup < 0 || w.total() == 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidWeights, w)
	}

	return nil
}

func (w Weights) pick(rng *rand.Rand) Action {
	roll := rng.IntN(w.total())

	if roll < w.Insert {
		return Insert
	}

	roll -= w.Insert
	if roll < w.Remove {
		return Remove
	}

	return Lookup
}
