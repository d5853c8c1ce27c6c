// Package changeset defines the diff model: the changes a mutable collection records and the
// ordered batches in which they are delivered to consumers.
//
// Keyed collections produce Change values identified by a key; positional collections produce
// ListChange values whose indices are authoritative. Range changes (AddRange, RemoveRange, Clear)
// are equivalent to the sequence of singleton changes returned by Flatten, so consumers may either
// special-case them or expand them.
package changeset
