package engine

// DefaultWindowSize bounds the recent-turn window used by the judge, critic,
// and quality monitor.
const DefaultWindowSize = 12

// WindowEntry is one line of the recent-turn window. Narration entries have
// an empty Speaker.
type WindowEntry struct {
	Speaker string
	Text    string
}

func windowText(window []WindowEntry) []string {
	lines := make([]string, len(window))
	for i, entry := range window {
		lines[i] = entry.Text
	}
	return lines
}

// dialogueText returns only character lines. Exit-condition evidence must come
// from what the characters said, not from narration that was itself seeded
// with the node's stakes and unmet conditions.
func dialogueText(window []WindowEntry) []string {
	var lines []string
	for _, entry := range window {
		if entry.Speaker != "" {
			lines = append(lines, entry.Text)
		}
	}
	return lines
}

// appendWindow appends entries and trims from the front to stay within limit.
// It always allocates so staged windows never alias the committed one.
func appendWindow(window []WindowEntry, limit int, entries ...WindowEntry) []WindowEntry {
	if limit <= 0 {
		limit = DefaultWindowSize
	}
	next := make([]WindowEntry, 0, len(window)+len(entries))
	next = append(next, window...)
	next = append(next, entries...)
	if len(next) > limit {
		next = next[len(next)-limit:]
	}
	return next
}
