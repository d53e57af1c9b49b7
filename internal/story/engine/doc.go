// Package engine orchestrates story turns.
//
// Each turn runs a fixed sequence: director intent update, turn planning,
// character generation, advance judgment, critic gating, node advancement,
// counter and quality updates, and event dispatch. Turns within a session are
// strictly sequential and commit all-or-nothing: the pipeline runs against a
// staged copy of the plot state that replaces the committed state only when
// the whole turn succeeds.
package engine
