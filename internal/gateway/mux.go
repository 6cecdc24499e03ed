package gateway

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// StorageMux routes s3:// containers to an object store and everything else
// to the default storage. Object store entry IDs are full s3:// URLs so Fetch
// routes the same way.
type StorageMux struct {
	Default Storage
	Object  Storage
}

func IsObjectContainer(container string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(container)), "s3://")
}

func (m StorageMux) pick(container string) (Storage, error) {
	if IsObjectContainer(container) {
		if m.Object == nil {
			return nil, ErrUnsupported
		}
		return m.Object, nil
	}
	if m.Default == nil {
		return nil, ErrUnsupported
	}
	return m.Default, nil
}

func (m StorageMux) List(ctx context.Context, container string) ([]Entry, error) {
	s, err := m.pick(container)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, container)
}

func (m StorageMux) Fetch(ctx context.Context, entry Entry, exportMIME string) (io.ReadCloser, error) {
	s, err := m.pick(entry.ID)
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, entry, exportMIME)
}

// TableMux reads local .xlsx/.xls/.csv paths through Local and any other
// reference (sheet URL or ID) through Remote.
type TableMux struct {
	Local  TabularSource
	Remote TabularSource
}

func IsLocalTable(ref string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(ref))) {
	case ".xlsx", ".xlsm", ".xls", ".csv":
		return !strings.Contains(ref, "://")
	}
	return false
}

func (m TableMux) Read(ctx context.Context, ref string) (Table, error) {
	if IsLocalTable(ref) {
		if m.Local == nil {
			return Table{}, ErrUnsupported
		}
		return m.Local.Read(ctx, ref)
	}
	if m.Remote == nil {
		return Table{}, ErrUnsupported
	}
	return m.Remote.Read(ctx, ref)
}
