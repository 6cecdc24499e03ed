package runstate

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
)

type JSONFileBackend struct {
	Path string
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileBackend) Load() (Snapshot, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

func (b *JSONFileBackend) Save(snapshot Snapshot) error {
	if b == nil || strings.TrimSpace(b.Path) == "" || snapshot == nil {
		return nil
	}
	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(b.Path, data, 0o644)
}
