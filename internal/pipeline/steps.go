package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/dvloznov/ledgersync/internal/domain"
	"github.com/dvloznov/ledgersync/internal/extract"
	"github.com/dvloznov/ledgersync/internal/fetch"
	"github.com/dvloznov/ledgersync/internal/logger"
)

// errNoPayload stops a source whose upstream answered without content.
var errNoPayload = errors.New("no data received")

// SourceStep is one stage of processing a single source.
type SourceStep interface {
	Execute(ctx context.Context, state *SourceState) error
}

// SourceState holds what the steps of one source hand to each other.
type SourceState struct {
	CompanyID   int64
	Source      *domain.Source
	Payload     []byte
	ContentHash string
	ArchiveURI  string
	Format      domain.Format
	Records     []domain.Record
	Inserted    int
}

// FetchStep downloads the source payload.
type FetchStep struct {
	Fetcher fetch.Fetcher
	Timeout time.Duration
}

func (s *FetchStep) Execute(ctx context.Context, state *SourceState) error {
	src := state.Source
	payload, err := s.Fetcher.Get(ctx, src.Endpoint, fetch.BearerHeaders(src.Credential), src.QueryParams, s.Timeout)
	if err != nil {
		return err
	}
	if payload == nil {
		return fmt.Errorf("%w from %s", errNoPayload, src.Endpoint)
	}

	sum := md5.Sum(payload)
	state.Payload = payload
	state.ContentHash = hex.EncodeToString(sum[:])

	log := logger.FromContext(ctx)
	log.Info().
		Str("content_hash", state.ContentHash).
		Int("bytes", len(payload)).
		Msg("Fetched API data")
	return nil
}

// SelectRecordsStep narrows the payload with the source's JSONPath, if any,
// and hands the selection to the extractor as its "data" member.
type SelectRecordsStep struct{}

func (s *SelectRecordsStep) Execute(ctx context.Context, state *SourceState) error {
	if state.Source.RecordsPath == "" {
		return nil
	}
	selected, err := SelectPayload(state.Payload, state.Source.RecordsPath)
	if err != nil {
		return err
	}
	state.Payload = selected
	return nil
}

// SelectPayload evaluates path against payload and returns {"data": <match>}.
func SelectPayload(payload []byte, path string) ([]byte, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, &extract.ShapeError{Format: "json", Reason: fmt.Sprintf("decode payload: %v", err)}
	}
	match, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, &extract.ShapeError{Format: "json", Reason: fmt.Sprintf("records path %q: %v", path, err)}
	}
	out, err := json.Marshal(map[string]any{"data": match})
	if err != nil {
		return nil, fmt.Errorf("SelectPayload: encode selection: %w", err)
	}
	return out, nil
}

// ArchivePayloadStep stores a copy of the payload. Archive failures are
// logged and do not stop the source.
type ArchivePayloadStep struct {
	Archiver PayloadArchiver
}

func (s *ArchivePayloadStep) Execute(ctx context.Context, state *SourceState) error {
	if s.Archiver == nil {
		return nil
	}
	uri, err := s.Archiver.Archive(ctx, state.CompanyID, state.Source.ID, state.ContentHash, state.Payload)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to archive payload")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// ExtractStep turns the payload into records with the extractor of the
// source's format.
type ExtractStep struct {
	Detector *extract.Detector
	Registry *extract.Registry
}

func (s *ExtractStep) Execute(ctx context.Context, state *SourceState) error {
	state.Format = s.Detector.Detect(state.Source)
	extractor, err := s.Registry.Lookup(state.Format)
	if err != nil {
		return err
	}

	records, err := extractor.Extract(ctx, state.Payload, extract.Scope{
		CompanyID:  state.CompanyID,
		SourceID:   state.Source.ID,
		SourceName: state.Source.Name,
	})
	if err != nil {
		return err
	}
	state.Records = records
	return nil
}

// PersistStep stores the records not seen before.
type PersistStep struct {
	Persister RecordPersister
}

func (s *PersistStep) Execute(ctx context.Context, state *SourceState) error {
	inserted, err := s.Persister.PersistNew(ctx, state.Records)
	state.Inserted = inserted
	return err
}
