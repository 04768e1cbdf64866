package domain

import (
	"strings"
)

// Node is a protocol address in the form name@domain/instance.
// Node values are immutable and compared with ==.
type Node struct {
	Name     string
	Domain   string
	Instance string
}

// ParseNode parses the string form of a node. The domain and instance parts
// are optional; the name is required.
func ParseNode(s string) (Node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Node{}, NewArgumentError("node", "must not be empty")
	}

	var n Node
	identity := s
	if i := strings.IndexByte(s, '/'); i >= 0 {
		identity, n.Instance = s[:i], s[i+1:]
	}
	if i := strings.IndexByte(identity, '@'); i >= 0 {
		n.Name, n.Domain = identity[:i], identity[i+1:]
	} else {
		n.Name = identity
	}

	if n.Name == "" && n.Domain == "" {
		return Node{}, NewArgumentError("node", "invalid address '"+s+"'")
	}
	return n, nil
}

// MustParseNode is like ParseNode but panics on error.
func MustParseNode(s string) Node {
	n, err := ParseNode(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String renders the node as name@domain/instance, omitting empty parts.
func (n Node) String() string {
	var b strings.Builder
	b.WriteString(n.Name)
	if n.Domain != "" {
		b.WriteByte('@')
		b.WriteString(n.Domain)
	}
	if n.Instance != "" {
		b.WriteByte('/')
		b.WriteString(n.Instance)
	}
	return b.String()
}

// IsZero reports whether the node has no parts set.
func (n Node) IsZero() bool {
	return n == Node{}
}

// Identity returns the node without its instance.
func (n Node) Identity() Node {
	return Node{Name: n.Name, Domain: n.Domain}
}

// IsComplete reports whether all three parts are set.
func (n Node) IsComplete() bool {
	return n.Name != "" && n.Domain != "" && n.Instance != ""
}

// MarshalText implements encoding.TextMarshaler.
func (n Node) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Node) UnmarshalText(text []byte) error {
	parsed, err := ParseNode(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// NodePtr returns a pointer to a copy of n, or nil when n is zero.
func NodePtr(n Node) *Node {
	if n.IsZero() {
		return nil
	}
	return &n
}

// NodeValue dereferences p, returning the zero node for nil.
func NodeValue(p *Node) Node {
	if p == nil {
		return Node{}
	}
	return *p
}
