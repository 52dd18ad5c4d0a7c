package rapid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/fatih/color"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
	"github.com/Sumatoshi-tech/indexbag/pkg/safeconv"
)

// DefaultSeed makes runs reproducible when no seed is given.
const DefaultSeed uint64 = 0x4a94ef6a5d233890

// seedStream is the second PCG word; the first is the configured seed.
const seedStream uint64 = 0xec58db09e66dead3

// Verification errors.
var (
	ErrValueMismatch = errors.New("rapid: value mismatch")
	ErrMissingEntry  = errors.New("rapid: handle did not resolve")
	ErrUnknownAction = errors.New("rapid: unknown action")
)

// startupSequence fills a few slots and frees one before random play begins.
var startupSequence = []Action{Insert, Insert, Insert, Insert, Insert, Insert, Insert, Remove, Insert}

var (
	insertColor = color.New(color.FgGreen, color.Bold)
	removeColor = color.New(color.FgRed, color.Bold)
	lookupColor = color.New(color.FgYellow, color.Bold)
)

// Entry is a value the driver inserted and the handle it got back.
type Entry struct {
	Value uint16
	Index indexbag.Index
}

// Recorder receives operation telemetry. *observability.BagMetrics
// implements it.
type Recorder interface {
	RecordOp(ctx context.Context, op string, hit bool, duration time.Duration)
	RecordOccupancy(ctx context.Context, poolSize, unused uint64)
}

type options struct {
	trace    io.Writer
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	bagOpts  []indexbag.Option
	weights  Weights
	seed     uint64

	hibernateEach int
	sampleEvery   int
}

// Option configures a Driver.
type Option func(*options)

// WithSeed sets the RNG seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithWeights sets how often each action is chosen by Run.
func WithWeights(weights Weights) Option {
	return func(o *options) { o.weights = weights }
}

// WithTrace writes one line per enacted action to w.
func WithTrace(w io.Writer) Option {
	return func(o *options) { o.trace = w }
}

// WithRecorder reports every operation to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithLogger sets the logger for run lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for the Run span.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithHibernateEach hibernates and boots the bag after every n actions.
// Zero disables it.
func WithHibernateEach(n int) Option {
	return func(o *options) { o.hibernateEach = n }
}

// WithSampleEvery records an occupancy Sample after every n actions. Zero
// disables sampling.
func WithSampleEvery(n int) Option {
	return func(o *options) { o.sampleEvery = n }
}

// WithBagOptions passes opts to the bag constructor.
func WithBagOptions(opts ...indexbag.Option) Option {
	return func(o *options) { o.bagOpts = append(o.bagOpts, opts...) }
}

// Driver enacts actions on a bag and verifies each result.
type Driver struct {
	bag     *indexbag.Bag[uint16]
	pcg     *rand.PCG
	rng     *rand.Rand
	entries []Entry
	opts    options

	samples []Sample

	counts       [actionCount]uint64
	skipped      uint64
	enacted      uint64
	hibernations uint64

	// warmedUp is set once the startup sequence has been played.
	warmedUp bool
}

// New creates a driver over an empty bag.
func New(opts ...Option) (*Driver, error) {
	o, err := resolveOptions(options{seed: DefaultSeed, weights: EqualWeights}, opts)
	if err != nil {
		return nil, err
	}

	pcg := rand.NewPCG(o.seed, seedStream)

	return &Driver{
		bag:  indexbag.New[uint16](o.bagOpts...),
		pcg:  pcg,
		rng:  rand.New(pcg),
		opts: o,
	}, nil
}

func resolveOptions(o options, opts []Option) (options, error) {
	for _, opt := range opts {
		opt(&o)
	}

	err := o.weights.Validate()
	if err != nil {
		return options{}, err
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if o.tracer == nil {
		o.tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return o, nil
}

// Bag returns the driven bag.
func (d *Driver) Bag() *indexbag.Bag[uint16] {
	return d.bag
}

// Entries returns a copy of the live entries, most recent last.
func (d *Driver) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Prefill inserts n random values.
func (d *Driver) Prefill(ctx context.Context, n int) error {
	for range n {
		err := d.Enact(ctx, Insert)
		if err != nil {
			return err
		}
	}

	return nil
}

// Enact performs one action. Remove takes the most recent entry and Lookup
// reads it; both are no-ops when nothing is live.
func (d *Driver) Enact(ctx context.Context, action Action) error {
	var err error

	switch action {
	case Insert:
		d.insert(ctx)
	case Remove:
		err = d.remove(ctx)
	case Lookup:
		err = d.lookup(ctx)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, int(action))
	}

	if err != nil {
		return err
	}

	d.enacted++

	if d.opts.hibernateEach > 0 && d.enacted%safeconv.MustIntToUint64(d.opts.hibernateEach) == 0 {
		d.cycleHibernation()
	}

	if d.opts.sampleEvery > 0 && d.enacted%safeconv.MustIntToUint64(d.opts.sampleEvery) == 0 {
		d.sample()
	}

	return nil
}

func (d *Driver) insert(ctx context.Context) {
	value := uint16(d.rng.Uint32())

	started := time.Now()
	idx := d.bag.Insert(value)
	d.observe(ctx, Insert, true, time.Since(started))

	d.entries = append(d.entries, Entry{Value: value, Index: idx})
	d.counts[Insert]++

	d.tracef(insertColor, "INSERT", "%04X         @ %v", value, idx)
}

func (d *Driver) remove(ctx context.Context) error {
	if len(d.entries) == 0 {
		d.skipped++

		return nil
	}

	last := d.entries[len(d.entries)-1]
	d.entries = d.entries[:len(d.entries)-1]

	started := time.Now()
	removed, ok := d.bag.Remove(last.Index)
	d.observe(ctx, Remove, ok, time.Since(started))

	if !ok {
		return fmt.Errorf("%w: remove %v", ErrMissingEntry, last.Index)
	}

	d.counts[Remove]++

	d.tracef(removeColor, "REMOVE", "%04X == %04X @ %v", removed, last.Value, last.Index)

	if removed != last.Value {
		return fmt.Errorf("%w: remove %v returned %04X, want %04X", ErrValueMismatch, last.Index, removed, last.Value)
	}

	return nil
}

func (d *Driver) lookup(ctx context.Context) error {
	if len(d.entries) == 0 {
		d.skipped++

		return nil
	}

	last := d.entries[len(d.entries)-1]

	started := time.Now()
	found, ok := d.bag.Get(last.Index)
	d.observe(ctx, Lookup, ok, time.Since(started))

	if !ok {
		return fmt.Errorf("%w: lookup %v", ErrMissingEntry, last.Index)
	}

	d.counts[Lookup]++

	d.tracef(lookupColor, "LOOKUP", "%04X == %04X @ %v", found, last.Value, last.Index)

	if found != last.Value {
		return fmt.Errorf("%w: lookup %v returned %04X, want %04X", ErrValueMismatch, last.Index, found, last.Value)
	}

	return nil
}

func (d *Driver) sample() {
	stats := d.bag.Stats()

	d.samples = append(d.samples, Sample{
		Step:     d.enacted,
		PoolSize: stats.PoolSize,
		Unused:   stats.Unused,
		Live:     stats.Live,
	})
}

// Samples returns the occupancy samples taken so far.
func (d *Driver) Samples() []Sample {
	return append([]Sample(nil), d.samples...)
}

func (d *Driver) cycleHibernation() {
	d.bag.Hibernate()

	if !d.bag.IsHibernated() {
		return
	}

	d.hibernations++
	d.bag.Boot()
}

func (d *Driver) observe(ctx context.Context, action Action, hit bool, elapsed time.Duration) {
	if d.opts.recorder != nil {
		d.opts.recorder.RecordOp(ctx, action.String(), hit, elapsed)
	}
}

func (d *Driver) tracef(labelColor *color.Color, label, format string, args ...any) {
	if d.opts.trace == nil {
		return
	}

	fmt.Fprintf(d.opts.trace, "%s (%4d/%4d) ", labelColor.Sprint(label), d.bag.UnusedIndexes(), d.bag.PoolSize())
	fmt.Fprintf(d.opts.trace, format+"\n", args...)
}

// Run plays the startup sequence, then n Steps. A driver resumed from a
// checkpoint skips the startup sequence. Run stops early with ctx.Err() when
// ctx is cancelled.
func (d *Driver) Run(ctx context.Context, n int) (Report, error) {
	ctx, span := d.opts.tracer.Start(ctx, "rapid.Run", trace.WithAttributes(
		attribute.Int("rapid.ops", n),
		attribute.String("rapid.seed", strconv.FormatUint(d.opts.seed, 16)),
	))
	defer span.End()

	started := time.Now()

	err := d.run(ctx, n)

	report := d.Report(time.Since(started))

	if d.opts.recorder != nil {
		d.opts.recorder.RecordOccupancy(ctx, report.PoolSize, report.Unused)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.opts.logger.ErrorContext(ctx, "rapid run failed", "error", err, "enacted", d.enacted)

		return report, err
	}

	span.SetAttributes(
		attribute.Int("rapid.pool_size", safeconv.MustUint64ToInt(report.PoolSize)),
		attribute.Int("rapid.depth", report.Depth),
	)

	d.opts.logger.InfoContext(ctx, "rapid run finished",
		"enacted", d.enacted,
		"pool_size", report.PoolSize,
		"unused", report.Unused,
		"duration", report.Duration,
	)

	return report, nil
}

func (d *Driver) run(ctx context.Context, n int) error {
	if !d.warmedUp {
		for _, action := range startupSequence {
			err := d.Enact(ctx, action)
			if err != nil {
				return err
			}
		}

		d.warmedUp = true
	}

	for range n {
		err := ctx.Err()
		if err != nil {
			return err
		}

		err = d.Step(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// Step shuffles the live entries and enacts one weighted random action.
func (d *Driver) Step(ctx context.Context) error {
	d.rng.Shuffle(len(d.entries), func(i, j int) {
		d.entries[i], d.entries[j] = d.entries[j], d.entries[i]
	})

	return d.Enact(ctx, d.opts.weights.pick(d.rng))
}
