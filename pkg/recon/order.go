package recon

import (
	"fmt"
	"sort"
	"strings"
)

// orderResources returns the declared resources in dependency order: a
// resource appears after everything it depends on. Ties are broken by
// address so the order is deterministic for a given catalog.
//
// A dependency on an undeclared address or a dependency cycle is a
// catalog defect and yields a permanent validation error.
func orderResources(declared []DeclaredResource) ([]DeclaredResource, error) {
	byAddress := make(map[string]DeclaredResource, len(declared))
	for _, res := range declared {
		if _, dup := byAddress[res.Address]; dup {
			return nil, NewPermanentError(
				fmt.Sprintf("duplicate declared address %s", res.Address), nil,
			).WithCode(ErrCodeValidation)
		}
		byAddress[res.Address] = res
	}

	// In-degree per address, and the reverse adjacency (dependents).
	inDegree := make(map[string]int, len(declared))
	dependents := make(map[string][]string, len(declared))
	for _, res := range declared {
		inDegree[res.Address] += 0
		for _, dep := range res.DependsOn {
			if _, ok := byAddress[dep]; !ok {
				return nil, NewPermanentError(
					fmt.Sprintf("resource %s depends on undeclared address %s", res.Address, dep), nil,
				).WithAddress(res.Address).WithCode(ErrCodeValidation)
			}
			if dep == res.Address {
				return nil, NewPermanentError(
					fmt.Sprintf("resource %s depends on itself", res.Address), nil,
				).WithAddress(res.Address).WithCode(ErrCodeCycle)
			}
			inDegree[res.Address]++
			dependents[dep] = append(dependents[dep], res.Address)
		}
	}

	// Kahn's algorithm with a sorted ready set for determinism.
	ready := make([]string, 0, len(declared))
	for addr, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, addr)
		}
	}
	sort.Strings(ready)

	ordered := make([]DeclaredResource, 0, len(declared))
	for len(ready) > 0 {
		addr := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byAddress[addr])

		released := make([]string, 0, len(dependents[addr]))
		for _, dependent := range dependents[addr] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(declared) {
		return nil, NewPermanentError(
			fmt.Sprintf("dependency cycle detected: %s", describeCycle(byAddress, inDegree)), nil,
		).WithCode(ErrCodeCycle)
	}
	return ordered, nil
}

// describeCycle walks the unresolved remainder of the graph and renders one
// cycle as "a -> b -> c -> a" for the error message.
func describeCycle(byAddress map[string]DeclaredResource, inDegree map[string]int) string {
	remaining := make(map[string]bool)
	for addr, deg := range inDegree {
		if deg > 0 {
			remaining[addr] = true
		}
	}

	// Start from the smallest remaining address and follow the first
	// remaining dependency until a node repeats.
	starts := make([]string, 0, len(remaining))
	for addr := range remaining {
		starts = append(starts, addr)
	}
	sort.Strings(starts)
	if len(starts) == 0 {
		return "unknown"
	}

	path := []string{}
	seen := make(map[string]int)
	current := starts[0]
	for {
		if at, ok := seen[current]; ok {
			cycle := append(path[at:], current)
			return strings.Join(cycle, " -> ")
		}
		seen[current] = len(path)
		path = append(path, current)

		next := ""
		deps := append([]string(nil), byAddress[current].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			return strings.Join(path, " -> ")
		}
		current = next
	}
}
