package datalog

import (
	"context"
	"fmt"
	"iter"
	"runtime"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Driver owns the single RelationStore accumulator for a run and, once
// seeded with EDB tuples,
// evaluates every Stage of a Stratification in order, iterating each
// Stage's rules via delta relations until no Stage member produces a
// new tuple.
type Driver struct {
	store      *RelationStore
	program    *Program
	strat      *Stratification
	idbNames   map[string]bool
	rulePlans  []*Plan
	logger     Logger
	maxWorkers int
	provenance *ProvenanceStore
}

// NewDriver compiles every rule of p into a Plan and returns a Driver
// ready for Seed then Run. strat must come from Analyze(p). When
// trackProvenance is true the Driver records a Derivation for every
// tuple it derives, retrievable afterward via Driver.Provenance.
func NewDriver(p *Program, strat *Stratification, logger Logger, trackProvenance bool) (*Driver, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	idbNames := sortedIDBNames(p)

	plans := make([]*Plan, len(p.Rules))
	var errs error
	for i, r := range p.Rules {
		plan, err := CompilePlan(r, idbNames)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		plans[i] = plan
	}
	if errs != nil {
		return nil, errs
	}

	var provenance *ProvenanceStore
	if trackProvenance {
		provenance = NewProvenanceStore()
	}

	return &Driver{
		store:      NewRelationStore(),
		program:    p,
		strat:      strat,
		idbNames:   idbNames,
		rulePlans:  plans,
		logger:     logger,
		maxWorkers: runtime.GOMAXPROCS(0),
		provenance: provenance,
	}, nil
}

// Store returns the accumulator RelationStore, readable once Run
// completes (or, for EDB relations, immediately after Seed).
func (d *Driver) Store() *RelationStore { return d.store }

// Provenance returns the Driver's ProvenanceStore, or nil if it was
// constructed with trackProvenance false.
func (d *Driver) Provenance() *ProvenanceStore { return d.provenance }

// SetMaxWorkers overrides the default GOMAXPROCS concurrency bound used
// by evalVariantsParallel. n <= 0 is ignored.
func (d *Driver) SetMaxWorkers(n int) {
	if n > 0 {
		d.maxWorkers = n
	}
}

// Seed loads every declared EDB relation through loader, validating
// each tuple against its schema before inserting it into the store.
func (d *Driver) Seed(ctx context.Context, loader Loader) error {
	var errs error
	for name, schema := range d.program.EDB {
		seq, err := loader.Load(ctx, schema)
		if err != nil {
			errs = multierr.Append(errs, wrapRelationError(name, err))
			continue
		}
		for t := range seq {
			if err := schema.checkArityAndTypes(t); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			d.store.Insert(name, t)
		}
	}
	return errs
}

// Run evaluates every Stage of the Stratification in order.
func (d *Driver) Run(ctx context.Context) error {
	for _, stage := range d.strat.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runStage(ctx, stage); err != nil {
			return fmt.Errorf("stage %v: %w", stage.Members, err)
		}
		d.logger.Infow("stage complete", "members", stage.Members, "stratum", stage.Stratum)
	}
	return nil
}

type ruleVariant struct {
	plan           *Plan
	deltaAtomIndex int // -1 means "no delta atom; read everything from full" (seeding variant)
}

// stageState names where a single Stage sits in its evaluation lifecycle:
// INIT before any rule has run, SEEDING during the first full pass over
// the accumulator, ITERATING while delta variants still produce new
// tuples, and DONE once a pass adds nothing.
type stageState int

const (
	stageInit stageState = iota
	stageSeeding
	stageIterating
	stageDone
)

func (s stageState) String() string {
	switch s {
	case stageInit:
		return "INIT"
	case stageSeeding:
		return "SEEDING"
	case stageIterating:
		return "ITERATING"
	case stageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

func (d *Driver) transition(stage Stage, from, to stageState) {
	d.logger.Debugw("stage transition", "members", stage.Members, "from", from.String(), "to", to.String())
}

func (d *Driver) runStage(ctx context.Context, stage Stage) error {
	state := stageInit
	members := make(map[string]bool, len(stage.Members))
	for _, m := range stage.Members {
		members[m] = true
	}

	var rules []*Plan
	for _, p := range d.rulePlans {
		if members[p.Head.Relation] {
			rules = append(rules, p)
		}
	}
	if len(rules) == 0 {
		d.transition(stage, state, stageDone)
		return nil
	}

	seedVariants := make([]ruleVariant, len(rules))
	for i, p := range rules {
		seedVariants[i] = ruleVariant{plan: p, deltaAtomIndex: -1}
	}

	d.transition(stage, state, stageSeeding)
	state = stageSeeding
	delta := NewRelationStore()
	raw, err := d.evalVariantsParallel(ctx, seedVariants, d.store, NewRelationStore())
	if err != nil {
		return err
	}
	d.mergeNew(d.store, delta, raw)

	if stageHasDelta(delta, stage.Members) {
		d.transition(stage, state, stageIterating)
		state = stageIterating
	}
	for iteration := 1; stageHasDelta(delta, stage.Members); iteration++ {
		variants := buildDeltaVariants(rules, members)
		if len(variants) == 0 {
			break
		}
		raw, err := d.evalVariantsParallel(ctx, variants, d.store, delta)
		if err != nil {
			return err
		}
		next := NewRelationStore()
		d.mergeNew(d.store, next, raw)
		delta = next
		d.logger.Debugw("stage iteration", "members", stage.Members, "iteration", iteration, "new", relationSizes(delta, stage.Members))
	}
	d.transition(stage, state, stageDone)
	return nil
}

// buildDeltaVariants returns one variant per (rule, body-atom-occurrence)
// pair where the occurrence positively references a member predicate —
// the nonlinear delta-expansion that lets each occurrence of a repeated
// IDB predicate route independently to the delta store. Rules with no
// such occurrence contributed everything they ever will during seeding
// and are skipped.
func buildDeltaVariants(rules []*Plan, members map[string]bool) []ruleVariant {
	var variants []ruleVariant
	for _, p := range rules {
		for _, step := range p.Steps {
			if step.Kind != BindStep && step.Kind != FilterStep {
				continue
			}
			if step.Atom.Negated || !members[step.Atom.Relation] {
				continue
			}
			variants = append(variants, ruleVariant{plan: p, deltaAtomIndex: step.AtomIndex})
		}
	}
	return variants
}

func stageHasDelta(delta *RelationStore, members []string) bool {
	for _, m := range members {
		if delta.Size(m) > 0 {
			return true
		}
	}
	return false
}

func relationSizes(store *RelationStore, names []string) map[string]int {
	out := make(map[string]int, len(names))
	for _, n := range names {
		out[n] = store.Size(n)
	}
	return out
}

// mergeNew inserts every candidate derivation's tuple into full;
// whichever ones were genuinely new (full.Insert returned true) are
// also recorded into target, giving the set difference between the
// candidates and the accumulator's prior contents without materializing
// it separately. When provenance tracking is enabled, the derivation
// that established each new tuple is recorded alongside it.
func (d *Driver) mergeNew(full, target *RelationStore, candidates map[string][]Derivation) {
	for relation, derivations := range candidates {
		for _, der := range derivations {
			if full.Insert(relation, der.Tuple) {
				target.Insert(relation, der.Tuple)
				if d.provenance != nil {
					d.provenance.Record(der)
				}
			}
		}
	}
}

// evalVariantsParallel runs every variant's plan concurrently, bounded
// by d.maxWorkers, and returns the (possibly redundant, possibly
// duplicate) derivations each variant produced, keyed by head relation.
// No variant writes to full or delta while any variant is still
// reading — results are merged by the caller only after every variant
// completes.
func (d *Driver) evalVariantsParallel(ctx context.Context, variants []ruleVariant, full, delta *RelationStore) (map[string][]Derivation, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.maxWorkers))

	type partial struct {
		relation    string
		derivations []Derivation
	}
	results := make([]partial, len(variants))

	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := deltaVariantSource{full: full, delta: delta, deltaAtomIndex: v.deltaAtomIndex}
			var derivations []Derivation
			for der := range v.plan.ExecuteWithSupport(src) {
				derivations = append(derivations, der)
			}
			results[i] = partial{relation: v.plan.Head.Relation, derivations: derivations}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]Derivation)
	for _, r := range results {
		out[r.relation] = append(out[r.relation], r.derivations...)
	}
	return out, nil
}

// fullSource routes every atom occurrence to the accumulator store.
type fullSource struct{ full *RelationStore }

func (s fullSource) scan(_ int, relation string) iter.Seq[Tuple] { return s.full.Scan(relation) }
func (s fullSource) probe(_ int, relation string, keyCols []int, keyValues Tuple) iter.Seq[Tuple] {
	return s.full.Probe(relation, keyCols, keyValues)
}
func (s fullSource) contains(_ int, relation string, t Tuple) bool { return s.full.Contains(relation, t) }

// deltaVariantSource routes exactly one body-atom occurrence (identified
// by its original rule-body index) to the delta relation and every
// other occurrence to the full accumulator.
type deltaVariantSource struct {
	full, delta    *RelationStore
	deltaAtomIndex int
}

func (s deltaVariantSource) scan(atomIndex int, relation string) iter.Seq[Tuple] {
	if atomIndex == s.deltaAtomIndex {
		return s.delta.Scan(relation)
	}
	return s.full.Scan(relation)
}

func (s deltaVariantSource) probe(atomIndex int, relation string, keyCols []int, keyValues Tuple) iter.Seq[Tuple] {
	if atomIndex == s.deltaAtomIndex {
		return s.delta.Probe(relation, keyCols, keyValues)
	}
	return s.full.Probe(relation, keyCols, keyValues)
}

func (s deltaVariantSource) contains(atomIndex int, relation string, t Tuple) bool {
	if atomIndex == s.deltaAtomIndex {
		return s.delta.Contains(relation, t)
	}
	return s.full.Contains(relation, t)
}
