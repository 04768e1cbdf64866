package repl

import (
	"sort"
	"strings"
	"sync"
)

// Completer provides command completion for the REPL.
type Completer struct {
	mu       sync.RWMutex
	commands []string
}

// NewCompleter creates a Completer over the given commands.
func NewCompleter(commands ...string) *Completer {
	c := &Completer{}
	for _, cmd := range commands {
		c.Add(cmd)
	}
	return c
}

// Add registers a command. Duplicates are ignored.
func (c *Completer) Add(cmd string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.SearchStrings(c.commands, cmd)
	if i < len(c.commands) && c.commands[i] == cmd {
		return
	}
	c.commands = append(c.commands, "")
	copy(c.commands[i+1:], c.commands[i:])
	c.commands[i] = cmd
}

// Complete returns the commands starting with prefix, sorted. An empty
// prefix matches nothing.
func (c *Completer) Complete(prefix string) []string {
	if prefix == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
