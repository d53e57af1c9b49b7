package engine

import (
	"fmt"
	"log"
	"sync"

	lua "github.com/Shopify/go-lua"
)

// luaMatchFunction is the global the matcher script must define. It receives
// the condition string and a table of window lines and returns a boolean.
const luaMatchFunction = "matches"

// LuaMatcher evaluates exit conditions with an operator-supplied Lua script,
// letting deployments tune matching without a rebuild. The script defines:
//
//	function matches(condition, window) ... end
//
// A script error fails open to the fallback matcher so a bad script can stall
// advancement at worst, never crash a turn.
type LuaMatcher struct {
	mu       sync.Mutex
	state    *lua.State
	fallback ConditionMatcher
	logger   *log.Logger
}

// NewLuaMatcher compiles the script and returns a matcher backed by it.
func NewLuaMatcher(script string, fallback ConditionMatcher, logger *log.Logger) (*LuaMatcher, error) {
	if fallback == nil {
		fallback = KeywordMatcher{}
	}
	if logger == nil {
		logger = log.Default()
	}
	state := lua.NewState()
	lua.OpenLibraries(state)
	if err := lua.DoString(state, script); err != nil {
		return nil, fmt.Errorf("load matcher script: %w", err)
	}
	state.Global(luaMatchFunction)
	defined := state.IsFunction(-1)
	state.Pop(1)
	if !defined {
		return nil, fmt.Errorf("matcher script does not define %q", luaMatchFunction)
	}
	return &LuaMatcher{state: state, fallback: fallback, logger: logger}, nil
}

func (m *LuaMatcher) Matches(condition string, window []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Global(luaMatchFunction)
	m.state.PushString(condition)
	m.state.CreateTable(len(window), 0)
	for i, line := range window {
		m.state.PushString(line)
		m.state.RawSetInt(-2, i+1)
	}
	if err := m.state.ProtectedCall(2, 1, 0); err != nil {
		m.logger.Printf("[ENGINE] lua matcher error, falling back: %v", err)
		return m.fallback.Matches(condition, window)
	}
	matched := m.state.ToBoolean(-1)
	m.state.Pop(1)
	return matched
}
