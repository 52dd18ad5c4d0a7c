package rapid

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
)

const checkpointVersion = 1

// ErrCheckpointVersion is returned when resuming from an unknown checkpoint
// layout.
var ErrCheckpointVersion = errors.New("rapid: unsupported checkpoint version")

// Checkpoint is the complete driver state. Resuming from it continues the
// exact action sequence the checkpointed driver would have played.
type Checkpoint struct {
	Bag          indexbag.Snapshot[uint16]
	Entries      []Entry
	RNG          []byte
	Weights      Weights
	Version      int
	Seed         uint64
	Inserts      uint64
	Removes      uint64
	Lookups      uint64
	Skipped      uint64
	Enacted      uint64
	Hibernations uint64
	WarmedUp     bool
}

// Checkpoint captures the driver state.
func (d *Driver) Checkpoint() (*Checkpoint, error) {
	rngState, err := d.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal rng: %w", err)
	}

	return &Checkpoint{
		Bag:          d.bag.Snapshot(),
		Entries:      d.Entries(),
		RNG:          rngState,
		Weights:      d.opts.weights,
		Version:      checkpointVersion,
		Seed:         d.opts.seed,
		Inserts:      d.counts[Insert],
		Removes:      d.counts[Remove],
		Lookups:      d.counts[Lookup],
		Skipped:      d.skipped,
		Enacted:      d.enacted,
		Hibernations: d.hibernations,
		WarmedUp:     d.warmedUp,
	}, nil
}

// Resume rebuilds a driver from cp. Options apply on top of the checkpointed
// seed and weights; bag options are ignored since the bag is restored.
func Resume(cp *Checkpoint, opts ...Option) (*Driver, error) {
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrCheckpointVersion, cp.Version)
	}

	o, err := resolveOptions(options{seed: cp.Seed, weights: cp.Weights}, opts)
	if err != nil {
		return nil, err
	}

	bag, err := indexbag.Restore(cp.Bag)
	if err != nil {
		return nil, fmt.Errorf("restore bag: %w", err)
	}

	pcg := &rand.PCG{}

	err = pcg.UnmarshalBinary(cp.RNG)
	if err != nil {
		return nil, fmt.Errorf("unmarshal rng: %w", err)
	}

	driver := &Driver{
		bag:          bag,
		pcg:          pcg,
		rng:          rand.New(pcg),
		entries:      append([]Entry(nil), cp.Entries...),
		opts:         o,
		skipped:      cp.Skipped,
		enacted:      cp.Enacted,
		hibernations: cp.Hibernations,
		warmedUp:     cp.WarmedUp,
	}

	driver.counts[Insert] = cp.Inserts
	driver.counts[Remove] = cp.Removes
	driver.counts[Lookup] = cp.Lookups

	return driver, nil
}
