package util

import (
	"cmp"
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map applies f to every element of s: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// MapSorted projects s through f and sorts the result, for stable log output of collections kept
// in arbitrary order.
func MapSorted[T any, U cmp.Ordered](f func(T) U, s []T) []U {
	result := Map(f, s)
	slices.Sort(result)
	return result
}

// Stringify renders v as JSON for logging, falling back to Go syntax when v cannot be marshaled.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
