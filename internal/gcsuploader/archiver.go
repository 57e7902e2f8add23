// Package gcsuploader archives fetched source payloads in Google Cloud
// Storage and reads them back for replay.
package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/ledgersync/internal/logger"
	"github.com/dvloznov/ledgersync/internal/pipeline"
)

// DefaultPrefix is the object prefix of archived payloads.
const DefaultPrefix = "payloads"

// Archiver stores payloads as gs://<bucket>/<prefix>/<company>/<source>/<md5>.json.
// Identical payloads map to the same object and are written once.
type Archiver struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewArchiver creates an Archiver writing to bucket with DefaultPrefix.
func NewArchiver(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket, prefix: DefaultPrefix}
}

// ObjectName returns the object path of a payload.
func (a *Archiver) ObjectName(companyID, sourceID int64, contentHash string) string {
	return path.Join(a.prefix, fmt.Sprint(companyID), fmt.Sprint(sourceID), contentHash+".json")
}

// Archive implements pipeline.PayloadArchiver and returns the gs:// URI.
func (a *Archiver) Archive(ctx context.Context, companyID, sourceID int64, contentHash string, payload []byte) (string, error) {
	if contentHash == "" {
		return "", fmt.Errorf("Archive: empty content hash")
	}

	object := a.ObjectName(companyID, sourceID, contentHash)
	uri := "gs://" + a.bucket + "/" + object

	err := a.store.Write(ctx, a.bucket, object, payload, "application/json")
	switch {
	case errors.Is(err, ErrObjectExists):
		log := logger.FromContext(ctx)
		log.Debug().Str("uri", uri).Msg("Payload already archived")
	case err != nil:
		return "", fmt.Errorf("Archive: %w", err)
	}
	return uri, nil
}

// Fetch downloads the payload at a gs:// URI.
func (a *Archiver) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	data, err := a.store.Read(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(gcsURI string) (string, string, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// ContentHashFromURI returns the payload hash encoded in an archive URI,
// e.g. "gs://bucket/payloads/1/10/abc.json" → "abc".
func ContentHashFromURI(uri string) string {
	return strings.TrimSuffix(path.Base(uri), ".json")
}

var _ pipeline.PayloadArchiver = (*Archiver)(nil)
