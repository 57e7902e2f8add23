package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// CompanyStore reads company and source configuration from the companies
// and sources tables.
type CompanyStore struct {
	db DB
}

// NewCompanyStore creates a CompanyStore over db.
func NewCompanyStore(db DB) *CompanyStore {
	return &CompanyStore{db: db}
}

const sourceColumns = `id, company_id, name, endpoint, COALESCE(credential, ''),
	query_params, COALESCE(format, ''), COALESCE(records_path, ''), last_sync`

// FindWithSources implements pipeline.CompanyStore.
func (s *CompanyStore) FindWithSources(ctx context.Context, companyID int64) (*domain.Company, error) {
	company := &domain.Company{ID: companyID}
	err := s.db.QueryRow(ctx, `SELECT name FROM companies WHERE id = $1`, companyID).Scan(&company.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("FindWithSources: company %d: %w", companyID, pipeline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindWithSources: company %d: %w", companyID, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE company_id = $1 ORDER BY id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("FindWithSources: sources of %d: %w", companyID, err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("FindWithSources: %w", err)
	}
	company.Sources = sources

	return company, nil
}

// TouchSourceSync implements pipeline.CompanyStore.
func (s *CompanyStore) TouchSourceSync(ctx context.Context, sourceID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE sources SET last_sync = $2 WHERE id = $1`, sourceID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("TouchSourceSync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("TouchSourceSync: source %d: %w", sourceID, pipeline.ErrNotFound)
	}
	return nil
}

// List implements pipeline.CompanyStore.
func (s *CompanyStore) List(ctx context.Context) ([]*domain.Company, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("List: companies: %w", err)
	}
	companies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Company, error) {
		c := &domain.Company{}
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("List: scan companies: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY company_id, id`)
	if err != nil {
		return nil, fmt.Errorf("List: sources: %w", err)
	}
	sources, err := collectSources(rows)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	attachSources(companies, sources)
	return companies, nil
}

// attachSources assigns each source to its company. Sources of unknown
// companies are ignored.
func attachSources(companies []*domain.Company, sources []*domain.Source) {
	byID := make(map[int64]*domain.Company, len(companies))
	for _, c := range companies {
		byID[c.ID] = c
	}
	for _, src := range sources {
		if c, ok := byID[src.CompanyID]; ok {
			c.Sources = append(c.Sources, src)
		}
	}
	for _, c := range companies {
		sort.Slice(c.Sources, func(i, j int) bool { return c.Sources[i].ID < c.Sources[j].ID })
	}
}

func collectSources(rows pgx.Rows) ([]*domain.Source, error) {
	sources, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Source, error) {
		var (
			src      domain.Source
			params   []byte
			format   string
			lastSync *time.Time
		)
		if err := row.Scan(&src.ID, &src.CompanyID, &src.Name, &src.Endpoint, &src.Credential,
			&params, &format, &src.RecordsPath, &lastSync); err != nil {
			return nil, err
		}
		queryParams, err := decodeQueryParams(params)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", src.ID, err)
		}
		src.QueryParams = queryParams
		src.Format = domain.Format(format)
		src.LastSync = lastSync
		return &src, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	return sources, nil
}

// decodeQueryParams reads the query_params JSONB object. Non-string values
// are kept in their JSON form.
func decodeQueryParams(raw []byte) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode query_params: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(values))
	for k, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			params[k] = s
			continue
		}
		params[k] = string(v)
	}
	return params, nil
}

var _ pipeline.CompanyStore = (*CompanyStore)(nil)
