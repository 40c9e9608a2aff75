// Package catalog serves creatives from an in-memory snapshot loaded from a
// JSON document on disk or in S3.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/storage"
	"github.com/ignite/adserving/internal/targeting"
)

// ErrInvalidDocument is returned when a catalog document cannot be decoded.
var ErrInvalidDocument = errors.New("invalid catalog document")

// Document is the serialized catalog.
type Document struct {
	Version int                 `json:"version"`
	Ads     []domain.CreativeAd `json:"creative_ads"`
}

// ParseDocument decodes a catalog document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// Memory is a concurrency-safe candidate source over a catalog snapshot.
type Memory struct {
	mu      sync.RWMutex
	version int
	ads     []domain.CreativeAd

	loader   storage.Loader
	location string
}

// NewMemory creates a source over ads.
func NewMemory(ads []domain.CreativeAd) *Memory {
	m := &Memory{}
	m.Replace(Document{Ads: ads})
	return m
}

// Load reads the document at location and keeps the loader for Reload.
func Load(ctx context.Context, loader storage.Loader, location string) (*Memory, error) {
	m := &Memory{loader: loader, location: location}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the document the catalog was loaded from.
func (m *Memory) Reload(ctx context.Context) error {
	if m.loader == nil {
		return nil
	}
	data, err := m.loader.Load(ctx, m.location)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	m.Replace(doc)
	log.Printf("[Catalog] Loaded version %d with %d creatives from %s", doc.Version, len(doc.Ads), m.location)
	return nil
}

// Replace swaps the snapshot.
func (m *Memory) Replace(doc Document) {
	ads := make([]domain.CreativeAd, len(doc.Ads))
	copy(ads, doc.Ads)

	m.mu.Lock()
	m.version = doc.Version
	m.ads = ads
	m.mu.Unlock()
}

// Version returns the loaded document version.
func (m *Memory) Version() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Len returns the number of creatives in the snapshot.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ads)
}

// GetForSegments returns creatives registered against any of segments. A
// parent segment also matches creatives registered against its children.
func (m *Memory) GetForSegments(_ context.Context, segments []string) ([]domain.CreativeAd, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CreativeAd
	for _, ad := range m.ads {
		for _, seg := range segments {
			if targeting.Matches(ad.Segment, seg) {
				out = append(out, ad)
				break
			}
		}
	}
	return out, nil
}
