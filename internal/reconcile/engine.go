package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fingerprint"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

// Record is the per-task state blob under tracker_tasks.
type Record struct {
	LastMasterHash       string `json:"last_master_hash"`
	LastResponseDataHash string `json:"last_response_data_hash"`
	LastGenerated        string `json:"last_generated"`
}

type Options struct {
	Logger *zap.Logger
	Clock  gateway.Clock
}

type Engine struct {
	tables gateway.TabularSource
	writer gateway.ArtifactWriter
	logger *zap.Logger
	clock  gateway.Clock
}

func New(tables gateway.TabularSource, writer gateway.ArtifactWriter, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{tables: tables, writer: writer, logger: logger, clock: opts.Clock}
}

// Run regenerates the tracker when the roster file or the response data has
// changed since the recorded pair. force bypasses that check.
func (e *Engine) Run(ctx context.Context, task taskdef.ReconcileTask, state *runstate.State, force bool) outcome.Result {
	category := string(taskdef.CategoryReconcile)
	log := e.logger.With(zap.String("task", task.Title))
	fail := func(err error) outcome.Result {
		return outcome.Fail(category, task.Title, err)
	}
	if err := task.Validate(); err != nil {
		return fail(outcome.Configuration(task.Title, "%v", err))
	}

	masterHash, ok, err := fingerprint.File(task.MasterExcel)
	if err != nil {
		return fail(fmt.Errorf("fingerprint roster: %w", err))
	}
	if !ok {
		return fail(outcome.Configuration(task.Title, "roster file %s not found", task.MasterExcel))
	}

	responses, err := e.tables.Read(ctx, task.ResponseSheetID)
	if err != nil {
		return fail(gateway.Classify(task.Title, err))
	}
	responseHash, err := fingerprint.Dataset(append([][]string{responses.Header}, responses.Rows...))
	if err != nil {
		return fail(fmt.Errorf("fingerprint responses: %w", err))
	}

	var prev Record
	if _, err := state.Get(runstate.CategoryReconcile, task.Title, &prev); err != nil {
		log.Warn("discarding unreadable tracker state", zap.Error(err))
		prev = Record{}
	}
	if !force && prev.LastMasterHash == masterHash && prev.LastResponseDataHash == responseHash {
		log.Info("tracker sources unchanged, skipping generation")
		return outcome.Skip(category, task.Title, "unchanged")
	}

	log.Info("change detected, regenerating tracker")
	rows, stats, err := e.build(ctx, task, responses)
	if err != nil {
		return fail(err)
	}
	if err := e.writer.WriteTracker(ctx, task.ResultPath, rows); err != nil {
		if outcome.IsCancelled(err) {
			return fail(err)
		}
		return fail(fmt.Errorf("write tracker %s: %w", task.ResultPath, err))
	}

	record := Record{
		LastMasterHash:       masterHash,
		LastResponseDataHash: responseHash,
		LastGenerated:        e.clock.Now().Format(time.RFC3339),
	}
	if err := state.Put(runstate.CategoryReconcile, task.Title, record); err != nil {
		return fail(err)
	}
	log.Info("tracker written", zap.String("path", task.ResultPath), zap.Int("rows", len(rows)))
	return outcome.Done(category, task.Title, stats)
}

func (e *Engine) build(ctx context.Context, task taskdef.ReconcileTask, responses gateway.Table) ([]ComplianceRow, string, error) {
	records, err := ParseResponses(responses)
	if err != nil {
		return nil, "", outcome.Configuration(task.Title, "%v", err)
	}
	rosterTable, err := e.tables.Read(ctx, task.MasterExcel)
	if err != nil {
		return nil, "", gateway.Classify(task.Title, err)
	}
	roster, err := ParseRoster(rosterTable)
	if err != nil {
		return nil, "", outcome.Configuration(task.Title, "%v", err)
	}
	rows, err := Expand(ctx, roster, Aggregate(records))
	if err != nil {
		return nil, "", err
	}
	uploaded := 0
	for _, row := range rows {
		if row.Uploaded == StatusYes {
			uploaded++
		}
	}
	return rows, fmt.Sprintf("%d of %d entries uploaded, %d rows", uploaded, len(roster), len(rows)), nil
}
