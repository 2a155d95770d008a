// Package segments resolves a client to the anonymized segment
// descriptors (industry, company size bucket) used when joining
// cross-population patterns onto a client's context.
package segments

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/outreachd/internal/store"
)

// ErrUnresolved indicates the client's segment could not be determined.
// Enrichment treats this as "skip", never as a failure.
var ErrUnresolved = errors.New("client segment unresolved")

// Segment describes where a client sits in the cross-population space.
type Segment struct {
	Industry    string `json:"industry"`
	CompanySize string `json:"company_size"`
}

// Resolver maps a client id to its segment descriptors.
type Resolver interface {
	Resolve(ctx context.Context, clientID string) (Segment, error)
}

// StoreResolver derives segments from the client's general context
// document, where company research lands the industry and company_size
// fields.
type StoreResolver struct {
	store *store.Store
}

// NewStoreResolver creates a resolver backed by the document store.
func NewStoreResolver(st *store.Store) *StoreResolver {
	return &StoreResolver{store: st}
}

// Resolve implements Resolver. Returns ErrUnresolved when the client has
// no general context or the segment fields are absent.
func (r *StoreResolver) Resolve(ctx context.Context, clientID string) (Segment, error) {
	doc, err := r.store.GetContextDocument(ctx, clientID, "general")
	if errors.Is(err, store.ErrNotFound) {
		return Segment{}, fmt.Errorf("client %s: %w", clientID, ErrUnresolved)
	}
	if err != nil {
		return Segment{}, err
	}

	seg := Segment{
		Industry:    stringField(doc.Document, "industry"),
		CompanySize: stringField(doc.Document, "company_size"),
	}
	if seg.Industry == "" && seg.CompanySize == "" {
		return Segment{}, fmt.Errorf("client %s: %w", clientID, ErrUnresolved)
	}
	return seg, nil
}

// Static is a fixed-map resolver for tests and single-tenant setups.
type Static map[string]Segment

// Resolve implements Resolver.
func (s Static) Resolve(_ context.Context, clientID string) (Segment, error) {
	seg, ok := s[clientID]
	if !ok {
		return Segment{}, fmt.Errorf("client %s: %w", clientID, ErrUnresolved)
	}
	return seg, nil
}

func stringField(doc store.Document, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}
