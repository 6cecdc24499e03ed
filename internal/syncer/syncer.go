package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fsutil"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

const (
	nativePrefix     = "application/vnd.google-apps"
	defaultChunkSize = 1 << 20
)

type exportFormat struct {
	MIME string
	Ext  string
}

var exportFormats = map[string]exportFormat{
	"application/vnd.google-apps.document":     {MIME: "application/pdf", Ext: ".pdf"},
	"application/vnd.google-apps.spreadsheet":  {MIME: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Ext: ".xlsx"},
	"application/vnd.google-apps.presentation": {MIME: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Ext: ".pptx"},
}

// ProgressFunc reports entries processed so far out of total.
type ProgressFunc func(current, total int)

type Options struct {
	Logger    *zap.Logger
	Progress  ProgressFunc
	ChunkSize int
}

type Engine struct {
	storage   gateway.Storage
	logger    *zap.Logger
	progress  ProgressFunc
	chunkSize int
}

// trackedEntry is the per-entry record kept under the task's state blob.
type trackedEntry struct {
	ModifiedTime string `json:"modifiedTime"`
	MD5          string `json:"md5"`
}

func New(storage gateway.Storage, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Engine{
		storage:   storage,
		logger:    logger,
		progress:  opts.Progress,
		chunkSize: chunkSize,
	}
}

type plan struct {
	localPath  string
	exportMIME string
	native     bool
}

func (e *Engine) Run(ctx context.Context, task taskdef.SyncTask, state *runstate.State) outcome.Result {
	category := string(taskdef.CategorySync)
	log := e.logger.With(zap.String("task", task.Title))
	if err := task.Validate(); err != nil {
		return outcome.Fail(category, task.Title, outcome.Configuration(task.Title, "%v", err))
	}

	tracked := map[string]trackedEntry{}
	if _, err := state.Get(runstate.CategorySync, task.Title, &tracked); err != nil {
		log.Warn("discarding unreadable sync state", zap.Error(err))
		tracked = map[string]trackedEntry{}
	}

	entries, err := e.storage.List(ctx, task.FolderID)
	if err != nil {
		if outcome.IsCancelled(err) {
			return outcome.Fail(category, task.Title, err)
		}
		return outcome.Fail(category, task.Title, outcome.Transient(task.Title, err))
	}
	if err := os.MkdirAll(task.Path, 0o755); err != nil {
		return outcome.Fail(category, task.Title, err)
	}

	var (
		downloaded, failed, unchanged, unsupported int
		lastErr                                    error
	)
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return e.cancelled(task.Title, downloaded, failed, err)
		}
		p, ok := planEntry(task.Path, entry)
		if !ok {
			unsupported++
			log.Warn("skipping unsupported native file", zap.String("entry", entry.Name), zap.String("mime", entry.MIMEType))
			e.report(i+1, len(entries))
			continue
		}
		if isUnchanged(p, entry, tracked) {
			unchanged++
			e.report(i+1, len(entries))
			continue
		}

		log.Info("downloading entry", zap.String("entry", entry.Name), zap.String("local", p.localPath))
		if err := e.fetch(ctx, entry, p); err != nil {
			if outcome.IsCancelled(err) {
				return e.cancelled(task.Title, downloaded, failed, err)
			}
			failed++
			lastErr = fmt.Errorf("%s: %w", entry.Name, err)
			log.Error("entry download failed", zap.String("entry", entry.Name), zap.Error(err))
			e.report(i+1, len(entries))
			continue
		}
		downloaded++
		tracked[entry.Name] = trackedEntry{ModifiedTime: entry.ModifiedTime, MD5: entry.Fingerprint}
		if err := state.Put(runstate.CategorySync, task.Title, tracked); err != nil {
			log.Error("recording sync state failed", zap.Error(err))
		}
		e.report(i+1, len(entries))
	}

	result := outcome.Counted(category, task.Title, downloaded, failed, lastErr)
	result.Detail = fmt.Sprintf("%d downloaded, %d unchanged, %d failed, %d unsupported", downloaded, unchanged, failed, unsupported)
	return result
}

func (e *Engine) cancelled(title string, downloaded, failed int, err error) outcome.Result {
	result := outcome.Fail(string(taskdef.CategorySync), title, err)
	result.Succeeded = downloaded
	result.Failed = failed
	return result
}

func (e *Engine) report(current, total int) {
	if e.progress != nil {
		e.progress(current, total)
	}
}

func planEntry(root string, entry gateway.Entry) (plan, bool) {
	p := plan{localPath: filepath.Join(root, localName(entry.Name))}
	if !strings.HasPrefix(entry.MIMEType, nativePrefix) {
		return p, true
	}
	format, ok := exportFormats[entry.MIMEType]
	if !ok {
		return plan{}, false
	}
	p.native = true
	p.exportMIME = format.MIME
	p.localPath = strings.TrimSuffix(p.localPath, filepath.Ext(p.localPath)) + format.Ext
	return p, true
}

// localName keeps remote names inside the destination directory.
func localName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// isUnchanged compares against the recorded entry: modification time for
// exported native documents, content fingerprint otherwise.
func isUnchanged(p plan, entry gateway.Entry, tracked map[string]trackedEntry) bool {
	if _, err := os.Stat(p.localPath); err != nil {
		return false
	}
	prev, ok := tracked[entry.Name]
	if !ok {
		return false
	}
	if p.native {
		return prev.ModifiedTime != "" && prev.ModifiedTime == entry.ModifiedTime
	}
	if entry.Fingerprint == "" {
		return prev.ModifiedTime != "" && prev.ModifiedTime == entry.ModifiedTime
	}
	return prev.MD5 == entry.Fingerprint
}

func (e *Engine) fetch(ctx context.Context, entry gateway.Entry, p plan) error {
	body, err := e.storage.Fetch(ctx, entry, p.exportMIME)
	if err != nil {
		return err
	}
	defer body.Close()
	return fsutil.WriteAtomic(p.localPath, 0o644, func(w io.Writer) error {
		return copyChunks(ctx, w, body, e.chunkSize)
	})
}

// copyChunks copies src to dst one chunk at a time, stopping between chunks
// once ctx is done.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
