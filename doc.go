// Package statesync mirrors selected paths of a reactive state tree into
// key-value storage.
//
// A Binding pairs a storage namespace with a set of dotted paths ("a.b.c").
// When a Coordinator attaches a Host, each binding restores the persisted
// record into the host state, writes the current projection back, and then
// persists again after every change the host reports for the watched
// top-level keys. The projection stored under a namespace contains only the
// watched paths:
//
//	host state  {"a": {"b": {"c": 5, "d": 1}}, "e": 2}
//	keys        ["a.b.c"]
//	record      {"a":{"b":{"c":5}}}
//
// Drivers live under drivers/ (memory, file, bolt, sqlite). pkg/reactive
// provides a Host implementation and pkg/declare builds bindings from YAML
// documents.
package statesync
