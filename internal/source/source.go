// Package source reads NDJSON ingestion records from local files and object
// stores.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lakegov/internal/domain"
)

var _ domain.RecordSourceOpener = (*Opener)(nil)

// Config holds object-store credentials. A scheme whose credentials are
// missing is rejected when a source is opened.
type Config struct {
	S3Region   string
	S3Endpoint string
	S3KeyID    string
	S3Secret   string

	GCSCredentialsFile string

	AzureAccountName string
	AzureAccountKey  string
}

// Opener opens record sources by URI scheme. Object-store clients are created
// on first use and reused.
type Opener struct {
	cfg Config

	mu  sync.Mutex
	s3  *s3.Client
	gcs *storage.Client
	az  *azblob.Client
}

// NewOpener creates a new Opener.
func NewOpener(cfg Config) *Opener {
	return &Opener{cfg: cfg}
}

// Open returns a source for uri. Supported schemes are file, s3, gs, az and
// abfss. A file URI may name one file or a directory of NDJSON files; object
// store URIs name a prefix whose objects are read in key order.
func (o *Opener) Open(ctx context.Context, uri string) (domain.RecordSource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, domain.ErrFieldValidation("source", "invalid URI %q: %v", uri, err)
	}
	switch u.Scheme {
	case "file":
		return fileSource(u)
	case "s3":
		client, err := o.s3Client()
		if err != nil {
			return nil, err
		}
		return s3Source(client, u)
	case "gs":
		client, err := o.gcsClient(ctx)
		if err != nil {
			return nil, err
		}
		return gcsSource(client, u)
	case "az", "abfss":
		client, err := o.azureClient()
		if err != nil {
			return nil, err
		}
		return azureSource(client, uri)
	default:
		return nil, domain.ErrFieldValidation("source", "unsupported scheme %q in %q; want file, s3, gs or az", u.Scheme, uri)
	}
}

// Close releases object-store clients that hold resources.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs != nil {
		err := o.gcs.Close()
		o.gcs = nil
		return err
	}
	return nil
}

// object is one named NDJSON object of a listed source.
type object struct {
	name string
	open func(ctx context.Context) (io.ReadCloser, error)
}

// listedSource reads every object its list function returns, in name order,
// as one record stream.
type listedSource struct {
	uri  string
	list func(ctx context.Context) ([]object, error)
}

// Read implements domain.RecordSource. Batches may span object boundaries.
func (s *listedSource) Read(ctx context.Context, batchSize int, fn func([]domain.Record) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	objs, err := s.list(ctx)
	if err != nil {
		return fmt.Errorf("list %s: %w", s.uri, err)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].name < objs[j].name })

	b := &batcher{size: batchSize, fn: fn}
	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.readObject(ctx, obj, b); err != nil {
			return err
		}
	}
	return b.flush()
}

func (s *listedSource) readObject(ctx context.Context, obj object, b *batcher) error {
	rc, err := obj.open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", obj.name, err)
	}
	defer rc.Close() //nolint:errcheck

	dec := json.NewDecoder(rc)
	for n := 1; ; n++ {
		var rec domain.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var syn *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.ErrUnexpectedEOF) {
				return domain.ErrFieldValidation("source", "%s: record %d is not a valid JSON object: %v", obj.name, n, err)
			}
			return fmt.Errorf("read %s: %w", obj.name, err)
		}
		if rec == nil {
			return domain.ErrFieldValidation("source", "%s: record %d is null", obj.name, n)
		}
		if err := b.add(rec); err != nil {
			return err
		}
	}
}

// batcher groups records into batches of at most size.
type batcher struct {
	size int
	fn   func([]domain.Record) error
	buf  []domain.Record
}

func (b *batcher) add(rec domain.Record) error {
	b.buf = append(b.buf, rec)
	if len(b.buf) < b.size {
		return nil
	}
	return b.flush()
}

func (b *batcher) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = make([]domain.Record, 0, b.size)
	return b.fn(batch)
}

// isDataObject reports whether an object or file name holds NDJSON records.
func isDataObject(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	for _, ext := range []string{".json", ".ndjson", ".jsonl"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
