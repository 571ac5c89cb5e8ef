package source

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"lakegov/internal/domain"
)

func fileSource(u *url.URL) (domain.RecordSource, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, domain.ErrFieldValidation("source", "file URI %q has no path", u.String())
	}
	path = filepath.Clean(path)
	return &listedSource{uri: u.String(), list: func(context.Context) ([]object, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []object{fileObject(path)}, nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var objs []object
		for _, e := range entries {
			if e.Type().IsRegular() && isDataObject(e.Name()) {
				objs = append(objs, fileObject(filepath.Join(path, e.Name())))
			}
		}
		return objs, nil
	}}, nil
}

func fileObject(path string) object {
	return object{name: path, open: func(context.Context) (io.ReadCloser, error) {
		return os.Open(path) //nolint:gosec // path comes from an authorised ingestion request
	}}
}
