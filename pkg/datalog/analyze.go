package datalog

import "sort"

// PrecedenceEdge records that the rule defining From references To in
// its body, either positively or negated.
type PrecedenceEdge struct {
	From    string
	To      string
	Negated bool
}

// Stage is one strongly connected component of the IDB precedence
// graph, in the topological order the Driver must evaluate it: every
// Stage a given Stage depends on appears earlier in the
// Stratification's Stages slice. Members with len > 1 (or a single
// member with a self-loop) are mutually recursive and are evaluated
// together by repeated semi-naive iteration until no delta remains.
type Stage struct {
	Members []string
	Stratum int
}

// Stratification is the dependency analysis output: a topological Stage
// order plus a per-predicate stratum number used to enforce that a
// negated reference to P is only evaluated once every Stage defining P
// has reached its fixpoint.
type Stratification struct {
	Stages  []Stage
	Stratum map[string]int
}

// Analyze builds the IDB precedence graph from p's rules, decomposes it
// into strongly connected components via Tarjan's algorithm, and assigns
// strata as the longest negative-edge path through the resulting DAG of
// components. Returns a *StratificationError if any strongly connected
// component contains a negative edge between two of its own members.
func Analyze(p *Program) (*Stratification, error) {
	edges := precedenceEdges(p)
	nodes := idbNodeList(p)

	sccs := tarjanSCCs(nodes, edges)

	componentOf := make(map[string]int, len(nodes))
	for i, scc := range sccs {
		for _, member := range scc {
			componentOf[member] = i
		}
	}

	for i, scc := range sccs {
		members := make(map[string]bool, len(scc))
		for _, m := range scc {
			members[m] = true
		}
		for _, e := range edges {
			if !e.Negated {
				continue
			}
			if members[e.From] && members[e.To] && componentOf[e.From] == i {
				sorted := append([]string(nil), scc...)
				sort.Strings(sorted)
				return nil, &StratificationError{Predicate: e.From, Members: sorted}
			}
		}
	}

	stratumOfComponent := make([]int, len(sccs))
	for i, scc := range sccs {
		members := make(map[string]bool, len(scc))
		for _, m := range scc {
			members[m] = true
		}
		max := 0
		for _, e := range edges {
			if !members[e.From] {
				continue
			}
			if members[e.To] {
				continue // intra-component edge, already validated
			}
			depStratum := stratumOfComponent[componentOf[e.To]]
			candidate := depStratum
			if e.Negated {
				candidate = depStratum + 1
			}
			if candidate > max {
				max = candidate
			}
		}
		stratumOfComponent[i] = max
	}

	stages := make([]Stage, len(sccs))
	stratum := make(map[string]int)
	for i, scc := range sccs {
		members := append([]string(nil), scc...)
		sort.Strings(members)
		stages[i] = Stage{Members: members, Stratum: stratumOfComponent[i]}
		for _, m := range members {
			stratum[m] = stratumOfComponent[i]
		}
	}

	return &Stratification{Stages: stages, Stratum: stratum}, nil
}

func precedenceEdges(p *Program) []PrecedenceEdge {
	seen := make(map[PrecedenceEdge]bool)
	var edges []PrecedenceEdge
	for _, r := range p.Rules {
		for _, atom := range r.Body {
			if _, isIDB := p.IDB[atom.Relation]; !isIDB {
				continue
			}
			e := PrecedenceEdge{From: r.Head.Relation, To: atom.Relation, Negated: atom.Negated}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

func idbNodeList(p *Program) []string {
	names := make([]string, 0, len(p.IDB))
	for name := range p.IDB {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// tarjanSCCs returns the strongly connected components of the graph
// (nodes, edges) in topological order: every component a component C
// depends on (via some edge out of C) appears earlier in the result.
// This falls out of Tarjan's algorithm directly — components are
// completed, and therefore appended, in reverse dependency order.
func tarjanSCCs(nodes []string, edges []PrecedenceEdge) [][]string {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	for _, succs := range adj {
		sort.Strings(succs)
	}

	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}
