package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/yndnr/lime-go/internal/core/domain"
)

// Storage errors.
var (
	// ErrNotFound indicates no resource exists at the key.
	ErrNotFound = domain.NewDomainError("LM-STOR-4040", "resource not found")

	// ErrClosed indicates the store was closed.
	ErrClosed = domain.NewDomainError("LM-STOR-5030", "store closed")
)

// Resource is a stored command resource.
type Resource struct {
	Type      string          `json:"type"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewResource encodes doc for storage.
func NewResource(doc domain.Document) (*Resource, error) {
	if doc == nil {
		return nil, domain.NewArgumentError("resource", "must not be nil")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Type:      doc.MediaType().String(),
		Value:     raw,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// Document decodes the stored value through the document registry.
func (r *Resource) Document() (domain.Document, error) {
	mt, err := domain.ParseMediaType(r.Type)
	if err != nil {
		return nil, err
	}
	return domain.DecodeDocument(mt, r.Value)
}

// ResourceStore stores resources per owner.
type ResourceStore interface {
	// Get returns the resource at uri, or ErrNotFound.
	Get(ctx context.Context, owner, uri string) (*Resource, error)

	// Set creates or replaces the resource at uri.
	Set(ctx context.Context, owner, uri string, r *Resource) error

	// Delete removes the resource at uri, or returns ErrNotFound.
	Delete(ctx context.Context, owner, uri string) error

	// List returns the URIs owned by owner that start with prefix, sorted.
	List(ctx context.Context, owner, prefix string) ([]string, error)

	// Close releases the store.
	Close() error
}

// ResourceKey builds the flat key used by key-value backends.
func ResourceKey(owner, uri string) string {
	return "res:" + owner + ":" + NormalizeURI(uri)
}

// OwnerPrefix is the key prefix of every resource owned by owner.
func OwnerPrefix(owner string) string {
	return "res:" + owner + ":"
}

// URIFromKey extracts the URI from a key built by ResourceKey.
func URIFromKey(owner, key string) string {
	return strings.TrimPrefix(key, OwnerPrefix(owner))
}

// NormalizeURI returns uri with a leading slash and no surrounding spaces.
func NormalizeURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return uri
}

func encodeResource(r *Resource) ([]byte, error) {
	if r == nil {
		return nil, domain.NewArgumentError("resource", "must not be nil")
	}
	return json.Marshal(r)
}

func decodeResource(data []byte) (*Resource, error) {
	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
