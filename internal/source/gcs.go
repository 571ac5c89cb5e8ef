package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lakegov/internal/domain"
)

func (o *Opener) gcsClient(ctx context.Context) (*storage.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs != nil {
		return o.gcs, nil
	}
	if o.cfg.GCSCredentialsFile == "" {
		return nil, domain.ErrFieldValidation("source", "gs sources are not configured (GCS_CREDENTIALS_FILE)")
	}
	client, err := storage.NewClient(context.WithoutCancel(ctx),
		option.WithAuthCredentialsFile(option.ServiceAccount, o.cfg.GCSCredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	o.gcs = client
	return client, nil
}

func gcsSource(client *storage.Client, u *url.URL) (domain.RecordSource, error) {
	bucket, prefix, err := parseBucketPath(u)
	if err != nil {
		return nil, err
	}
	return &listedSource{uri: u.String(), list: func(ctx context.Context) ([]object, error) {
		var objs []object
		it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, err
			}
			name := attrs.Name
			if !isDataObject(name) {
				continue
			}
			objs = append(objs, object{name: "gs://" + bucket + "/" + name, open: func(ctx context.Context) (io.ReadCloser, error) {
				return client.Bucket(bucket).Object(name).NewReader(ctx)
			}})
		}
		return objs, nil
	}}, nil
}
