package util

import (
	"sort"
)

// EqualSlices compares a and b element by element using key as the identity
// of an element. With ignoreOrder the two slices are compared as multisets.
func EqualSlices[T any](a, b []T, key func(T) string, ignoreOrder bool) bool {
	if len(a) != len(b) {
		return false
	}

	ka := keysOf(a, key)
	kb := keysOf(b, key)

	if ignoreOrder {
		sort.Strings(ka)
		sort.Strings(kb)
	}

	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func keysOf[T any](s []T, key func(T) string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = key(v)
	}
	return out
}
