package taskdef

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
)

var ErrCorrupt = errors.New("task file is corrupt")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://autompp.local/task_set.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func taskSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Store persists a Set as JSON or YAML depending on the file extension.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the task file. A missing file yields an empty set. A file that
// fails to parse or validate is copied to <path>.backup and an empty set is
// returned together with an ErrCorrupt error.
func (s *Store) Load() (*Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Set{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &Set{}, nil
	}
	set, decodeErr := s.decode(data)
	if decodeErr == nil {
		return set, nil
	}
	if backupErr := fsutil.WriteFileAtomic(s.path+".backup", data, 0o644); backupErr != nil {
		return &Set{}, fmt.Errorf("%w: %v (backup failed: %v)", ErrCorrupt, decodeErr, backupErr)
	}
	return &Set{}, fmt.Errorf("%w: %v", ErrCorrupt, decodeErr)
}

func (s *Store) decode(data []byte) (*Set, error) {
	if s.isYAML() {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		data = converted
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// Validate checks a JSON task document against the embedded schema.
func Validate(data []byte) error {
	schema, err := taskSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

func (s *Store) Save(set *Set) error {
	if set == nil {
		set = &Set{}
	}
	data, err := json.MarshalIndent(set, "", "    ")
	if err != nil {
		return err
	}
	if err := Validate(data); err != nil {
		return err
	}
	if s.isYAML() {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o644)
}

// DecodeTask parses one task of the given category from a JSON or YAML
// document. Unknown fields are rejected.
func DecodeTask(category Category, data []byte) (Task, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(converted))
	dec.DisallowUnknownFields()

	var task Task
	switch category {
	case CategorySync:
		var t SyncTask
		err = dec.Decode(&t)
		task = t
	case CategoryMessage:
		var t MessageTask
		err = dec.Decode(&t)
		task = t
	case CategoryReconcile:
		var t ReconcileTask
		err = dec.Decode(&t)
		task = t
	case CategorySchemaUpdate:
		var t SchemaUpdateTask
		err = dec.Decode(&t)
		task = t
	case CategoryFollowUp:
		var t FollowUpTask
		err = dec.Decode(&t)
		task = t
	default:
		return nil, fmt.Errorf("unknown task category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s task: %w", category, err)
	}
	return task, task.Validate()
}
