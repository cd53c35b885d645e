package internal

import (
	"sort"

	"github.com/featurebridge/go-server-sdk/fbmodel"
	"github.com/featurebridge/go-server-sdk/fbvalue"
	"github.com/featurebridge/go-server-sdk/interfaces"
)

type kindAndKey struct {
	kind interfaces.StoreDataKind
	key  string
}

type kindAndKeySet map[kindAndKey]struct{}

func (s kindAndKeySet) add(value kindAndKey) {
	s[value] = struct{}{}
}

// computeDependenciesFrom returns everything the given item directly depends on: the
// flags named by its prerequisites, and the segments referenced by segmentMatch clauses
// in its rules. Segments have no dependencies.
func computeDependenciesFrom(
	kind interfaces.StoreDataKind,
	fromItem interfaces.StoreItemDescriptor,
) kindAndKeySet {
	if kind != interfaces.DataKindFeatures() {
		return nil
	}
	flag, ok := fromItem.Item.(*fbmodel.FeatureFlag)
	if !ok {
		return nil
	}
	var ret kindAndKeySet
	ensure := func() kindAndKeySet {
		if ret == nil {
			ret = make(kindAndKeySet)
		}
		return ret
	}
	for _, p := range flag.Prerequisites {
		ensure().add(kindAndKey{interfaces.DataKindFeatures(), p.Key})
	}
	for _, r := range flag.Rules {
		for _, c := range r.Clauses {
			if c.Op != fbmodel.OperatorSegmentMatch {
				continue
			}
			for _, v := range c.Values {
				if v.Type() == fbvalue.StringType {
					ensure().add(kindAndKey{interfaces.DataKindSegments(), v.StringValue()})
				}
			}
		}
	}
	return ret
}

// sortDataForStoreInit orders a full data set so that a store writing the items one at
// a time always writes an item after everything it depends on: segment collections come
// before flag collections, and within the flag collection each flag follows its
// prerequisites.
func sortDataForStoreInit(allData []interfaces.StoreCollection) []interfaces.StoreCollection {
	ordered := make([]interfaces.StoreCollection, len(allData))
	for i, coll := range allData {
		if coll.Kind == interfaces.DataKindFeatures() {
			coll.Items = sortItemsByDependency(coll.Kind, coll.Items)
		}
		ordered[i] = coll
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return kindWriteRank(ordered[i].Kind) < kindWriteRank(ordered[j].Kind)
	})
	return ordered
}

// kindWriteRank determines the order in which whole collections are written: segments
// carry no dependencies and go first, flags second, and any future kind after both.
func kindWriteRank(kind interfaces.StoreDataKind) int {
	switch kind {
	case interfaces.DataKindSegments():
		return 0
	case interfaces.DataKindFeatures():
		return 1
	default:
		return 2
	}
}

// sortItemsByDependency produces a dependency-first ordering of one collection using an
// iterative depth-first traversal. Item keys are walked in sorted order so the output
// is deterministic for a given input set.
//
// The data is not trusted to be acyclic: a dependency that is already on the traversal
// stack is ignored, which breaks the cycle at that edge and lets initialization
// proceed with the remaining edges intact.
func sortItemsByDependency(
	kind interfaces.StoreDataKind,
	items []interfaces.StoreKeyedItemDescriptor,
) []interfaces.StoreKeyedItemDescriptor {
	byKey := make(map[string]interfaces.StoreItemDescriptor, len(items))
	roots := make([]string, 0, len(items))
	for _, item := range items {
		byKey[item.Key] = item.Item
		roots = append(roots, item.Key)
	}
	sort.Strings(roots)

	const (
		statePending = iota // not reached yet
		stateOnStack        // reached, dependencies still being emitted
		stateEmitted        // already in the output
	)
	states := make(map[string]int, len(items))

	type traversal struct {
		key     string
		deps    []string // same-kind dependency keys, in emission order
		nextDep int
	}

	out := make([]interfaces.StoreKeyedItemDescriptor, 0, len(items))
	for _, root := range roots {
		if states[root] != statePending {
			continue
		}
		states[root] = stateOnStack
		stack := []traversal{{key: root, deps: sameKindDependencyKeys(kind, byKey[root])}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			if top.nextDep < len(top.deps) {
				dep := top.deps[top.nextDep]
				top.nextDep++
				// Dependencies outside this data set order themselves; a dependency
				// already on the stack is a cycle's back-edge and is dropped.
				if _, present := byKey[dep]; present && states[dep] == statePending {
					states[dep] = stateOnStack
					stack = append(stack, traversal{key: dep, deps: sameKindDependencyKeys(kind, byKey[dep])})
				}
				continue
			}

			// All dependencies are in the output, so this item can follow them.
			out = append(out, interfaces.StoreKeyedItemDescriptor{Key: top.key, Item: byKey[top.key]})
			states[top.key] = stateEmitted
			stack = stack[:len(stack)-1]
		}
	}
	return out
}

// sameKindDependencyKeys filters an item's dependencies down to the keys that matter
// for ordering within its own collection, sorted for deterministic traversal.
func sameKindDependencyKeys(
	kind interfaces.StoreDataKind,
	item interfaces.StoreItemDescriptor,
) []string {
	deps := computeDependenciesFrom(kind, item)
	if len(deps) == 0 {
		return nil
	}
	keys := make([]string, 0, len(deps))
	for dep := range deps {
		if dep.kind == kind {
			keys = append(keys, dep.key)
		}
	}
	sort.Strings(keys)
	return keys
}
