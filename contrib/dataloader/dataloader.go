// Package dataloader provides helpers for batch loads that fetch many keys
// in few round trips and hand results back in request order.
//
// A batch typically groups the requested keys by the table that holds
// them, runs one query per group and then restores the request order:
//
//	groups := dataloader.GroupByKey(refs, func(r graph.Ref) string {
//	    return graph.TableName(r.Type)
//	})
//	// ... one IN query per group ...
//	nodes := dataloader.OrderByKeysNoError(keys, found, func(n *graph.Node) string {
//	    return n.Ref().String()
//	})
package dataloader

import "errors"

// ErrNotFound is reported for keys without a loaded value.
var ErrNotFound = errors.New("dataloader: entity not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// OrderByKeys returns values in the order of keys. The result has one
// entry per key; keys without a value get the zero value and ErrNotFound.
// A key requested twice gets the same value twice.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError is like OrderByKeys but leaves missing keys as zero
// values without reporting them.
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by key, keeping their relative order.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns groups[keys[i]] at index i.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}
