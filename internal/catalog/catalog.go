// Package catalog loads companies and their upstream sources from a YAML file.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

type file struct {
	Companies []*domain.Company `yaml:"companies"`
}

// Catalog is an in-memory pipeline.CompanyStore backed by a YAML document.
// Last-sync times are kept in memory only.
type Catalog struct {
	mu        sync.RWMutex
	companies map[int64]*domain.Company
	sources   map[int64]*domain.Source
	now       func() time.Time
}

// Load reads a catalog from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Load: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("Load: %q: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog document and validates its identifiers.
func Parse(r io.Reader) (*Catalog, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Companies)
}

// New builds a catalog from companies. Company and source IDs must be
// positive and unique; every source needs an endpoint.
func New(companies []*domain.Company) (*Catalog, error) {
	c := &Catalog{
		companies: make(map[int64]*domain.Company, len(companies)),
		sources:   make(map[int64]*domain.Source),
		now:       time.Now,
	}
	for _, company := range companies {
		if company.ID <= 0 {
			return nil, fmt.Errorf("company %q: id must be positive", company.Name)
		}
		if _, dup := c.companies[company.ID]; dup {
			return nil, fmt.Errorf("duplicate company id %d", company.ID)
		}
		for _, src := range company.Sources {
			if src.ID <= 0 {
				return nil, fmt.Errorf("company %d source %q: id must be positive", company.ID, src.Name)
			}
			if _, dup := c.sources[src.ID]; dup {
				return nil, fmt.Errorf("duplicate source id %d", src.ID)
			}
			if src.Endpoint == "" {
				return nil, fmt.Errorf("source %d: endpoint is required", src.ID)
			}
			switch src.Format {
			case "", domain.FormatHierarchical, domain.FormatFlat:
			default:
				return nil, fmt.Errorf("source %d: unknown format %q", src.ID, src.Format)
			}
			src.CompanyID = company.ID
			c.sources[src.ID] = src
		}
		c.companies[company.ID] = company
	}
	return c, nil
}

// FindWithSources implements pipeline.CompanyStore.
func (c *Catalog) FindWithSources(ctx context.Context, companyID int64) (*domain.Company, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	company, ok := c.companies[companyID]
	if !ok {
		return nil, fmt.Errorf("%w: company %d", pipeline.ErrNotFound, companyID)
	}
	return cloneCompany(company), nil
}

// TouchSourceSync implements pipeline.CompanyStore.
func (c *Catalog) TouchSourceSync(ctx context.Context, sourceID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: source %d", pipeline.ErrNotFound, sourceID)
	}
	now := c.now().UTC()
	src.LastSync = &now
	return nil
}

// List implements pipeline.CompanyStore.
func (c *Catalog) List(ctx context.Context) ([]*domain.Company, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.Company, 0, len(c.companies))
	for _, company := range c.companies {
		out = append(out, cloneCompany(company))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// cloneCompany copies a company deep enough that callers cannot mutate the
// catalog. Callers hold mu.
func cloneCompany(company *domain.Company) *domain.Company {
	out := *company
	out.Sources = make([]*domain.Source, 0, len(company.Sources))
	for _, src := range company.Sources {
		s := *src
		if src.LastSync != nil {
			t := *src.LastSync
			s.LastSync = &t
		}
		out.Sources = append(out.Sources, &s)
	}
	return &out
}

var _ pipeline.CompanyStore = (*Catalog)(nil)
