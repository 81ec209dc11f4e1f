// Package resolver maintains the forward/reverse dependency graph over
// registered manifests and computes dependency-closure topological
// orders, missing-dependency sets, and cyclic sets.
package resolver

import (
	"sort"

	"github.com/helix-host/helix/internal/herror"
	"github.com/helix-host/helix/internal/manifest"
	"github.com/helix-host/helix/internal/semver"
)

// Resolver holds the registered manifests and the derived adjacency
// maps. It is not safe for concurrent use; callers serialize access
// (the supervisor does this via internal/ingress).
type Resolver struct {
	modules map[string]*manifest.Manifest
	forward map[string]map[string]struct{} // name -> mandatory+satisfied-optional deps
	reverse map[string]map[string]struct{} // name -> dependents
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{
		modules: make(map[string]*manifest.Manifest),
		forward: make(map[string]map[string]struct{}),
		reverse: make(map[string]map[string]struct{}),
	}
}

// Add registers m's manifest. It fails if the name is already present.
func (r *Resolver) Add(m *manifest.Manifest) error {
	if _, ok := r.modules[m.Name]; ok {
		return herror.New(herror.AlreadyPresent, "module %s already registered in resolver", m.Name)
	}
	r.modules[m.Name] = m
	r.rebuild()
	return nil
}

// Remove drops name from the resolver, if present.
func (r *Resolver) Remove(name string) {
	if _, ok := r.modules[name]; !ok {
		return
	}
	delete(r.modules, name)
	r.rebuild()
}

// Has reports whether name is registered.
func (r *Resolver) Has(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// Manifest returns the registered manifest for name, or nil.
func (r *Resolver) Manifest(name string) *manifest.Manifest {
	return r.modules[name]
}

// Dependents returns the direct dependents of name.
func (r *Resolver) Dependents(name string) []string {
	return setToSortedSlice(r.reverse[name])
}

func (r *Resolver) rebuild() {
	r.forward = make(map[string]map[string]struct{}, len(r.modules))
	r.reverse = make(map[string]map[string]struct{}, len(r.modules))
	for name := range r.modules {
		r.forward[name] = make(map[string]struct{})
	}
	for name, m := range r.modules {
		for _, dep := range m.Dependencies {
			_, present := r.modules[dep.Name]
			if dep.Optional && !present {
				continue
			}
			r.forward[name][dep.Name] = struct{}{}
			if r.reverse[dep.Name] == nil {
				r.reverse[dep.Name] = make(map[string]struct{})
			}
			r.reverse[dep.Name][name] = struct{}{}
		}
	}
}

// Result is the outcome of Resolve.
type Result struct {
	Order   []string // dependency-first load order, valid iff len(Missing)==0 && len(Cyclic)==0
	Missing []string // names reachable from targets that are absent or version-unsatisfied
	Cyclic  []string // names that actually lie on a reachable cycle
}

// Resolve computes the dependency closure reachable from targets via
// mandatory (and satisfied-optional) edges, and returns either a
// dependency-first topological order or the missing/cyclic sets that
// blocked it.
func (r *Resolver) Resolve(targets []string) Result {
	closure := r.closure(targets)

	missing := r.findMissing(targets, closure)
	cyclic := r.findCycles(closure)
	if len(missing) > 0 || len(cyclic) > 0 {
		return Result{Missing: missing, Cyclic: cyclic}
	}

	order := r.topoSort(closure)
	return Result{Order: order}
}

// closure returns the set of names reachable from targets via forward
// edges, including targets themselves (whether or not they're
// registered — findMissing reports unregistered targets separately).
func (r *Resolver) closure(targets []string) map[string]struct{} {
	needed := make(map[string]struct{})
	queue := append([]string(nil), targets...)
	for _, t := range targets {
		needed[t] = struct{}{}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range r.forward[cur] {
			if _, ok := needed[dep]; !ok {
				needed[dep] = struct{}{}
				queue = append(queue, dep)
			}
		}
	}
	return needed
}

// findMissing reports, for every module reachable from targets, any
// mandatory dependency that is either absent from the registry or whose
// registered version does not satisfy the edge's requirement. It also
// reports any target itself that is not registered.
func (r *Resolver) findMissing(targets []string, closure map[string]struct{}) []string {
	missing := make(map[string]struct{})
	for _, t := range targets {
		if _, ok := r.modules[t]; !ok {
			missing[t] = struct{}{}
		}
	}
	for name := range closure {
		m, ok := r.modules[name]
		if !ok {
			continue
		}
		for _, dep := range m.Dependencies {
			depManifest, present := r.modules[dep.Name]
			if !present {
				if !dep.Optional {
					missing[dep.Name] = struct{}{}
				}
				continue
			}
			if dep.Requirement == "" {
				continue
			}
			req, err := semver.ParseRequirement(dep.Requirement)
			if err != nil {
				missing[dep.Name] = struct{}{}
				continue
			}
			avail, err := semver.Parse(depManifest.Version)
			if err != nil || !semver.Satisfies(avail, req) {
				if !dep.Optional {
					missing[dep.Name] = struct{}{}
				}
			}
		}
	}
	return setToSortedSlice(missing)
}

// findCycles runs a DFS over the closure subgraph, tracking the
// recursion stack, and returns only the names that genuinely lie on a
// reachable cycle: when a back-edge to a stack member is found, only the
// stack segment from that member forward (inclusive) is cyclic, not
// every node the DFS happened to visit en route.
func (r *Resolver) findCycles(closure map[string]struct{}) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(closure))
	var stack []string
	stackPos := make(map[string]int)
	cyclic := make(map[string]struct{})

	var names []string
	for n := range closure {
		names = append(names, n)
	}
	sort.Strings(names)

	var visit func(node string)
	visit = func(node string) {
		state[node] = visiting
		stackPos[node] = len(stack)
		stack = append(stack, node)

		var deps []string
		for d := range r.forward[node] {
			if _, ok := closure[d]; ok {
				deps = append(deps, d)
			}
		}
		sort.Strings(deps)

		for _, dep := range deps {
			switch state[dep] {
			case unvisited:
				visit(dep)
			case visiting:
				// Back-edge to a node still on the stack: everything
				// from that node forward is on this cycle.
				start := stackPos[dep]
				for _, n := range stack[start:] {
					cyclic[n] = struct{}{}
				}
			case done:
				// Cross/forward edge, not a cycle.
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, node)
		state[node] = done
	}

	for _, n := range names {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return setToSortedSlice(cyclic)
}

// topoSort runs Kahn's algorithm over the closure subgraph. In-degree
// counts edges from within the subgraph. Ties among zero-in-degree nodes
// break lexicographically by name for determinism.
func (r *Resolver) topoSort(closure map[string]struct{}) []string {
	inDegree := make(map[string]int, len(closure))
	for name := range closure {
		deg := 0
		for dep := range r.forward[name] {
			if _, ok := closure[dep]; ok {
				deg++
			}
		}
		inDegree[name] = deg
	}

	ready := make([]string, 0, len(closure))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(closure))
	for len(ready) > 0 {
		sort.Strings(ready)
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		var newlyReady []string
		for dependent := range r.reverse[cur] {
			if _, ok := closure[dependent]; !ok {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				newlyReady = append(newlyReady, dependent)
			}
		}
		ready = append(ready, newlyReady...)
	}

	return order
}

func setToSortedSlice(s map[string]struct{}) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
