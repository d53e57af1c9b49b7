package engine

import (
	"log"
	"strings"
	"testing"
)

const matchScript = `
function matches(condition, window)
	local text = string.lower(table.concat(window, " "))
	for word in string.gmatch(string.lower(condition), "%a+") do
		if #word >= 4 and string.find(text, word, 1, true) then
			return true
		end
	end
	return false
end
`

func TestLuaMatcher(t *testing.T) {
	matcher, err := NewLuaMatcher(matchScript, nil, nil)
	if err != nil {
		t.Fatalf("new lua matcher: %v", err)
	}

	window := []string{"The umbrella changes hands at the door."}
	if !matcher.Matches("umbrella is returned", window) {
		t.Fatal("expected script match")
	}
	if matcher.Matches("coffee is spilled", window) {
		t.Fatal("expected no script match")
	}
}

func TestLuaMatcherRequiresMatchFunction(t *testing.T) {
	if _, err := NewLuaMatcher(`x = 1`, nil, nil); err == nil {
		t.Fatal("expected error for script without matches function")
	}
}

func TestLuaMatcherFallsBackOnScriptError(t *testing.T) {
	script := `
function matches(condition, window)
	error("boom")
end
`
	var logged strings.Builder
	matcher, err := NewLuaMatcher(script, KeywordMatcher{}, log.New(&logged, "", 0))
	if err != nil {
		t.Fatalf("new lua matcher: %v", err)
	}

	window := []string{"They exchange names."}
	if !matcher.Matches("names are exchanged", window) {
		t.Fatal("expected fallback keyword match")
	}
	if !strings.Contains(logged.String(), "lua matcher error") {
		t.Fatalf("expected fallback log, got %q", logged.String())
	}
}
