package datalog

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// NaiveEvaluator computes the same least fixed point as Driver by
// repeatedly evaluating every rule of a stage against the full
// accumulator until a pass adds nothing, with no delta bookkeeping at
// all. It exists purely as an independent, obviously-correct oracle for
// differential testing against the Driver's semi-naive algorithm — it
// is not wired into Engine's default evaluation path.
type NaiveEvaluator struct {
	store      *RelationStore
	program    *Program
	strat      *Stratification
	rulePlans  []*Plan
	maxWorkers int
}

// NewNaiveEvaluator mirrors NewDriver's compilation step.
func NewNaiveEvaluator(p *Program, strat *Stratification) (*NaiveEvaluator, error) {
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
	return &NaiveEvaluator{
		store:      NewRelationStore(),
		program:    p,
		strat:      strat,
		rulePlans:  plans,
		maxWorkers: 1,
	}, nil
}

// Store returns the accumulator store.
func (n *NaiveEvaluator) Store() *RelationStore { return n.store }

// Seed loads EDB tuples exactly as Driver.Seed does.
func (n *NaiveEvaluator) Seed(ctx context.Context, loader Loader) error {
	var errs error
	for name, schema := range n.program.EDB {
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
			n.store.Insert(name, t)
		}
	}
	return errs
}

// Run re-evaluates each Stage's rules against the full accumulator
// until a pass yields no new tuple, in Stage order.
func (n *NaiveEvaluator) Run(ctx context.Context) error {
	for _, stage := range n.strat.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.runStage(ctx, stage); err != nil {
			return fmt.Errorf("stage %v: %w", stage.Members, err)
		}
	}
	return nil
}

func (n *NaiveEvaluator) runStage(ctx context.Context, stage Stage) error {
	members := make(map[string]bool, len(stage.Members))
	for _, m := range stage.Members {
		members[m] = true
	}

	var rules []*Plan
	for _, p := range n.rulePlans {
		if members[p.Head.Relation] {
			rules = append(rules, p)
		}
	}
	if len(rules) == 0 {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		addedAny := false
		src := fullSource{full: n.store}
		for _, plan := range rules {
			for t := range plan.Execute(src) {
				if n.store.Insert(plan.Head.Relation, t) {
					addedAny = true
				}
			}
		}
		if !addedAny {
			return nil
		}
	}
}
