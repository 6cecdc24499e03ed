// Package gateway declares the external collaborators the engines depend on.
// Implementations live in the subpackages.
package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

var ErrUnsupported = errors.New("unsupported source")

// Classify maps a collaborator error onto an outcome kind for task. An
// unsupported source is a configuration problem; anything not already
// classified is treated as transient.
func Classify(task string, err error) error {
	switch {
	case outcome.IsCancelled(err):
		return err
	case errors.Is(err, ErrUnsupported):
		return outcome.Configuration(task, "%v", err)
	case errors.Is(err, outcome.ErrCredential), errors.Is(err, outcome.ErrTransient),
		errors.Is(err, outcome.ErrConfiguration), errors.Is(err, outcome.ErrDataIntegrity):
		return err
	default:
		return outcome.Transient(task, err)
	}
}

// Entry is one remote object inside a storage container.
type Entry struct {
	ID           string
	Name         string
	MIMEType     string
	ModifiedTime string
	// Fingerprint is the provider content checksum (Drive md5, S3 ETag). It is
	// empty for native documents that must be exported.
	Fingerprint string
	Size        int64
}

type Storage interface {
	List(ctx context.Context, container string) ([]Entry, error)
	// Fetch opens the entry's bytes. exportMIME is set for native document
	// types and names the target format.
	Fetch(ctx context.Context, entry Entry, exportMIME string) (io.ReadCloser, error)
}

type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the first header equal to name, or -1.
func (t Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// Cell returns row[i] trimmed, or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

type TabularSource interface {
	Read(ctx context.Context, ref string) (Table, error)
}

// TrackerRow is one output row of the compliance tracker. Continuation rows
// of a group leave every field except Document empty.
type TrackerRow struct {
	Seq       int
	Location  string
	SPOC      string
	Email     string
	Document  string
	Uploaded  string
	Timestamp string
}

// ArtifactWriter persists tracker rows. Implementations must size columns,
// color the Uploaded cell by status and merge each group's rows.
type ArtifactWriter interface {
	WriteTracker(ctx context.Context, path string, rows []TrackerRow) error
}

type FormItem struct {
	ItemID     string
	Title      string
	QuestionID string
	Index      int
	Required   bool
}

type Form struct {
	ID    string
	Items []FormItem
}

type ChoiceUpdate struct {
	Item    FormItem
	Choices []string
}

type FormSchema interface {
	Get(ctx context.Context, formID string) (Form, error)
	BatchUpdate(ctx context.Context, formID string, updates []ChoiceUpdate) error
}

type Message struct {
	To      string
	CC      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Set bundles the gateways one cycle needs.
type Set struct {
	Storage Storage
	Tables  TabularSource
	Writer  ArtifactWriter
	Forms   FormSchema
	Mailer  Mailer
}

// Clock returns the current time; engines take one so tests can pin "today".
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
