package httpbridge

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/yosida95/uritemplate/v3"
)

// Processor handles the requests matching one of its methods and its URI
// template.
type Processor interface {
	Methods() []string
	Template() *uritemplate.Template
	Process(ctx context.Context, req *Request, params uritemplate.Values, session Session) (*Response, error)
}

// Registry holds processors in registration order.
type Registry struct {
	mu         sync.RWMutex
	processors []Processor
}

// NewRegistry creates a registry with processors.
func NewRegistry(processors ...Processor) *Registry {
	return &Registry{processors: processors}
}

// Register appends p. Earlier registrations take precedence.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	r.processors = append(r.processors, p)
	r.mu.Unlock()
}

// Match returns the first processor accepting method and path.
func (r *Registry) Match(method, path string) (Processor, uritemplate.Values, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.processors {
		if !hasMethod(p.Methods(), method) {
			continue
		}
		if values := p.Template().Match(path); values != nil {
			return p, values, true
		}
	}
	return nil, nil, false
}

func hasMethod(methods []string, method string) bool {
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// processorFunc adapts a function to Processor.
type processorFunc struct {
	methods  []string
	template *uritemplate.Template
	process  func(ctx context.Context, req *Request, params uritemplate.Values, session Session) (*Response, error)
}

// NewProcessor builds a processor from a function. It panics if template
// is not a valid URI template.
func NewProcessor(template string, process func(ctx context.Context, req *Request, params uritemplate.Values, session Session) (*Response, error), methods ...string) Processor {
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	return &processorFunc{methods: methods, template: uritemplate.MustNew(template), process: process}
}

func (p *processorFunc) Methods() []string { return p.methods }

func (p *processorFunc) Template() *uritemplate.Template { return p.template }

func (p *processorFunc) Process(ctx context.Context, req *Request, params uritemplate.Values, session Session) (*Response, error) {
	return p.process(ctx, req, params, session)
}
