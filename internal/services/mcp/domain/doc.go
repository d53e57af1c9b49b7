// Package domain translates MCP tool calls into story engine commands.
//
// The package is intentionally explicit about that mapping:
// - parse MCP tool input into engine-scoped commands,
// - route calls to the owning session orchestrator,
// - and surface structured outputs that MCP clients can render.
package domain
