// Package generate defines the generation collaborators the turn engine
// calls out to: character turn generation, director intent parsing, and
// bridge narration. Deterministic template implementations back every
// interface so the engine stays usable without a model provider; the genai
// implementations swap in when an API key is configured.
package generate
