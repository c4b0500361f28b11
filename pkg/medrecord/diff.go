package medrecord

import (
	"reflect"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DiffTrees computes a recursive structural diff between two nested
// key->value trees. Mapping nodes are recursed per the sorted union of
// their keys; every other value (including lists) is an opaque leaf.
// For each dotted path whose leaf values differ, the old value is put in
// the returned before map and the new value in the returned after map; a
// path absent on one side appears only in the other map. Unchanged paths
// are omitted entirely. The function is pure.
func DiffTrees(before, after map[string]any) (map[string]any, map[string]any) {
	changedBefore := make(map[string]any)
	changedAfter := make(map[string]any)
	diffNode("", before, after, changedBefore, changedAfter)
	return changedBefore, changedAfter
}

func diffNode(prefix string, before, after map[string]any, outBefore, outAfter map[string]any) {
	union := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		union[k] = struct{}{}
	}
	for k := range after {
		union[k] = struct{}{}
	}

	keys := maps.Keys(union)
	slices.Sort(keys)

	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		bv, inBefore := before[key]
		av, inAfter := after[key]

		bm, bIsMap := bv.(map[string]any)
		am, aIsMap := av.(map[string]any)
		switch {
		case bIsMap && aIsMap:
			diffNode(path, bm, am, outBefore, outAfter)
			continue
		case bIsMap && !inAfter:
			// whole subtree removed: flatten its leaves
			diffNode(path, bm, nil, outBefore, outAfter)
			continue
		case aIsMap && !inBefore:
			// whole subtree added: flatten its leaves
			diffNode(path, nil, am, outBefore, outAfter)
			continue
		}

		switch {
		case !inBefore:
			outAfter[path] = av
		case !inAfter:
			outBefore[path] = bv
		case !reflect.DeepEqual(bv, av):
			outBefore[path] = bv
			outAfter[path] = av
		}
	}
}
