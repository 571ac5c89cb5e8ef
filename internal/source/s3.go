package source

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lakegov/internal/domain"
)

func (o *Opener) s3Client() (*s3.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.s3 != nil {
		return o.s3, nil
	}
	if o.cfg.S3KeyID == "" || o.cfg.S3Secret == "" {
		return nil, domain.ErrFieldValidation("source", "s3 sources are not configured (S3_KEY_ID, S3_SECRET)")
	}
	region := o.cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(o.cfg.S3KeyID, o.cfg.S3Secret, ""),
	}
	if o.cfg.S3Endpoint != "" {
		endpoint := o.cfg.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		// S3-compatible stores behind a custom endpoint need path-style URLs.
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	o.s3 = s3.New(opts)
	return o.s3, nil
}

func s3Source(client *s3.Client, u *url.URL) (domain.RecordSource, error) {
	bucket, prefix, err := parseBucketPath(u)
	if err != nil {
		return nil, err
	}
	return &listedSource{uri: u.String(), list: func(ctx context.Context) ([]object, error) {
		var objs []object
		p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if !isDataObject(key) {
					continue
				}
				objs = append(objs, object{name: "s3://" + bucket + "/" + key, open: func(ctx context.Context) (io.ReadCloser, error) {
					out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
					if err != nil {
						return nil, err
					}
					return out.Body, nil
				}})
			}
		}
		return objs, nil
	}}, nil
}

// parseBucketPath splits scheme://bucket/prefix URIs.
func parseBucketPath(u *url.URL) (bucket, prefix string, err error) {
	bucket = u.Host
	if bucket == "" {
		return "", "", domain.ErrFieldValidation("source", "%s URI %q has no bucket", u.Scheme, u.String())
	}
	return bucket, strings.TrimPrefix(u.Path, "/"), nil
}
