// Package domain defines the story progression data model.
//
// A story is a fixed ordered sequence of plot nodes (beats). The engine walks
// the sequence one node at a time, constrained by per-node turn budgets and an
// overall session turn band derived from the director's pace control. Types in
// this package are plain data with validation; all mutation ordering is owned
// by the orchestrator in the engine package.
package domain
