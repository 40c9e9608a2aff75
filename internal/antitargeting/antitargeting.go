// Package antitargeting decides whether a creative must be withheld because
// the user visited a site that opted out of a segment or an advertiser domain.
//
// The list is a JSON document:
//
//	{"version": 1, "sites": {"example.com": ["sports", "casino.test"]}}
//
// Keys are visited sites; values are segments or target domains blocked for
// users who visited that site. A blocked parent segment blocks its children.
package antitargeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/storage"
	"github.com/ignite/adserving/internal/targeting"
)

// ErrInvalidDocument is returned when the list cannot be parsed.
var ErrInvalidDocument = errors.New("invalid anti-targeting document")

// Document is the serialized form of the list.
type Document struct {
	Version int                 `json:"version"`
	Sites   map[string][]string `json:"sites"`
}

// List is a concurrency-safe anti-targeting lookup. The zero value blocks nothing.
type List struct {
	mu      sync.RWMutex
	version int
	sites   map[string]map[string]struct{}
}

// New builds a List from a document.
func New(doc Document) *List {
	l := &List{}
	l.Replace(doc)
	return l
}

// Parse decodes a JSON document.
func Parse(data []byte) (*List, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return New(doc), nil
}

// Load fetches and parses the document at location.
func Load(ctx context.Context, loader storage.Loader, location string) (*List, error) {
	data, err := loader.Load(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("loading anti-targeting list: %w", err)
	}
	return Parse(data)
}

// Replace swaps the list contents.
func (l *List) Replace(doc Document) {
	sites := make(map[string]map[string]struct{}, len(doc.Sites))
	for site, blocked := range doc.Sites {
		host := domain.HostOf(site)
		if host == "" {
			continue
		}
		set, ok := sites[host]
		if !ok {
			set = make(map[string]struct{}, len(blocked))
			sites[host] = set
		}
		for _, b := range blocked {
			b = normalize(b)
			if b != "" {
				set[b] = struct{}{}
			}
		}
	}

	l.mu.Lock()
	l.version = doc.Version
	l.sites = sites
	l.mu.Unlock()
}

// Version returns the document version currently loaded.
func (l *List) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// IsBlocked reports whether segmentOrDomain is blocked by any site in history.
func (l *List) IsBlocked(segmentOrDomain string, history []string) bool {
	key := normalize(segmentOrDomain)
	if key == "" || len(history) == 0 {
		return false
	}
	parent := targeting.ParentSegment(key)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.sites) == 0 {
		return false
	}
	for _, visited := range history {
		blocked, ok := l.sites[domain.HostOf(visited)]
		if !ok {
			continue
		}
		if _, hit := blocked[key]; hit {
			return true
		}
		if _, hit := blocked[parent]; hit {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Contains(s, "://") {
		return domain.HostOf(s)
	}
	return strings.TrimPrefix(s, "www.")
}
