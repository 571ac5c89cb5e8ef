package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"lakegov/internal/domain"
)

func (o *Opener) azureClient() (*azblob.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.az != nil {
		return o.az, nil
	}
	if o.cfg.AzureAccountName == "" || o.cfg.AzureAccountKey == "" {
		return nil, domain.ErrFieldValidation("source", "az sources are not configured (AZURE_ACCOUNT_NAME, AZURE_ACCOUNT_KEY)")
	}
	cred, err := azblob.NewSharedKeyCredential(o.cfg.AzureAccountName, o.cfg.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", o.cfg.AzureAccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	o.az = client
	return client, nil
}

func azureSource(client *azblob.Client, uri string) (domain.RecordSource, error) {
	container, prefix, err := parseAzurePath(uri)
	if err != nil {
		return nil, err
	}
	return &listedSource{uri: uri, list: func(ctx context.Context) ([]object, error) {
		var objs []object
		pager := client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, item := range page.Segment.BlobItems {
				if item.Name == nil || !isDataObject(*item.Name) {
					continue
				}
				name := *item.Name
				objs = append(objs, object{name: "az://" + container + "/" + name, open: func(ctx context.Context) (io.ReadCloser, error) {
					resp, err := client.DownloadStream(ctx, container, name, nil)
					if err != nil {
						return nil, err
					}
					return resp.Body, nil
				}})
			}
		}
		return objs, nil
	}}, nil
}

// parseAzurePath extracts container and blob prefix from an Azure URI.
//
//	az://container/path/to/prefix
//	abfss://container@account.dfs.core.windows.net/path/to/prefix
func parseAzurePath(uri string) (container, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", domain.ErrFieldValidation("source", "invalid URI %q: %v", uri, err)
	}
	switch u.Scheme {
	case "az":
		container = u.Host
	case "abfss":
		if u.User == nil {
			return "", "", domain.ErrFieldValidation("source", "abfss URI %q is missing the container@account component", uri)
		}
		container = u.User.Username()
	default:
		return "", "", domain.ErrFieldValidation("source", "unsupported Azure scheme %q", u.Scheme)
	}
	if container == "" {
		return "", "", domain.ErrFieldValidation("source", "Azure URI %q has no container", uri)
	}
	return container, strings.TrimPrefix(u.Path, "/"), nil
}
