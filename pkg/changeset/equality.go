package changeset

import (
	"k8s.io/apimachinery/pkg/api/equality"
)

// EqualFunc decides whether a replacement item is equal to the item it replaces. Sources suppress
// the update when it returns true.
type EqualFunc[V any] func(old, new V) bool

// SemanticEqual compares items by value. Pointers are followed, so two pointers to equal structs
// are equal.
func SemanticEqual[V any](old, new V) bool {
	return equality.Semantic.DeepEqual(old, new)
}

// IdentityEqual compares items with ==, which for pointer items means identity.
func IdentityEqual[V comparable](old, new V) bool { return old == new }

// NeverEqual makes every replacement count as an update.
func NeverEqual[V any](_, _ V) bool { return false }
