// Package storage defines the persistence interfaces for the story engine.
//
// It covers plot state snapshots, the session transcript, and operational
// telemetry. Implementations live in subpackages; sqlite is the default.
package storage
