// Package formupdate keeps a form's dropdown questions in step with the
// roster behind a tracker task.
package formupdate

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/fingerprint"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

// FieldMapping pairs a form question title with the roster column feeding
// its choices.
type FieldMapping struct {
	Question string
	Column   string
}

var DefaultMappings = []FieldMapping{
	{Question: "Location", Column: "Location"},
	{Question: "Email", Column: "Email ID"},
	{Question: "SPOC Name", Column: "SPOC"},
}

// Record is the per-task state blob under form_updater_tasks.
type Record struct {
	LastExcelHash string `json:"last_excel_hash"`
	LastUpdated   string `json:"last_updated"`
}

type Options struct {
	Logger   *zap.Logger
	Clock    gateway.Clock
	Mappings []FieldMapping
}

type Engine struct {
	tables   gateway.TabularSource
	forms    gateway.FormSchema
	logger   *zap.Logger
	clock    gateway.Clock
	mappings []FieldMapping
}

func New(tables gateway.TabularSource, forms gateway.FormSchema, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mappings := opts.Mappings
	if len(mappings) == 0 {
		mappings = DefaultMappings
	}
	return &Engine{tables: tables, forms: forms, logger: logger, clock: opts.Clock, mappings: mappings}
}

// Run replaces the choices of every mapped question in one batch. It does
// nothing when the roster file is unchanged since the last update, unless
// force is set.
func (e *Engine) Run(ctx context.Context, task taskdef.SchemaUpdateTask, tasks *taskdef.Set, state *runstate.State, force bool) outcome.Result {
	category := string(taskdef.CategorySchemaUpdate)
	fail := func(err error) outcome.Result { return outcome.Fail(category, task.Title, err) }
	log := e.logger.With(zap.String("task", task.Title))
	if err := task.Validate(); err != nil {
		return fail(outcome.Configuration(task.Title, "%v", err))
	}
	tracker, ok := tasks.Reconcile(task.TrackerTitle)
	if !ok {
		return fail(outcome.Configuration(task.Title, "tracker task %q not found", task.TrackerTitle))
	}

	hash, ok, err := fingerprint.File(tracker.MasterExcel)
	if err != nil {
		return fail(fmt.Errorf("fingerprint roster: %w", err))
	}
	if !ok {
		return fail(outcome.Configuration(task.Title, "roster file %s not found", tracker.MasterExcel))
	}
	var prev Record
	if _, err := state.Get(runstate.CategorySchemaUpdate, task.Title, &prev); err != nil {
		log.Warn("discarding unreadable form state", zap.Error(err))
		prev = Record{}
	}
	if !force && prev.LastExcelHash == hash {
		log.Info("roster unchanged, skipping form update")
		return outcome.Skip(category, task.Title, "unchanged")
	}

	roster, err := e.tables.Read(ctx, tracker.MasterExcel)
	if err != nil {
		return fail(gateway.Classify(task.Title, err))
	}
	formID := taskdef.ExtractGoogleID(task.FormLink)
	form, err := e.forms.Get(ctx, formID)
	if err != nil {
		return fail(gateway.Classify(task.Title, err))
	}

	updates, fields := e.plan(log, roster, form)
	if len(updates) == 0 {
		log.Warn("no matching questions or data to update")
		return outcome.Skip(category, task.Title, "no matching questions")
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if err := e.forms.BatchUpdate(ctx, formID, updates); err != nil {
		return fail(gateway.Classify(task.Title, err))
	}

	record := Record{LastExcelHash: hash, LastUpdated: e.clock.Now().Format(time.RFC3339)}
	if err := state.Put(runstate.CategorySchemaUpdate, task.Title, record); err != nil {
		return fail(err)
	}
	log.Info("form dropdowns updated", zap.String("form", formID), zap.Strings("fields", fields))
	return outcome.Done(category, task.Title, "updated "+strings.Join(fields, ", "))
}

func (e *Engine) plan(log *zap.Logger, roster gateway.Table, form gateway.Form) ([]gateway.ChoiceUpdate, []string) {
	var (
		updates []gateway.ChoiceUpdate
		fields  []string
	)
	for _, m := range e.mappings {
		col := roster.Column(m.Column)
		if col < 0 {
			log.Warn("roster column missing", zap.String("column", m.Column), zap.String("question", m.Question))
			continue
		}
		choices := Choices(roster, col)
		if len(choices) == 0 {
			log.Warn("roster column empty", zap.String("column", m.Column), zap.String("question", m.Question))
			continue
		}
		item, ok := FindItem(form, m.Question)
		if !ok {
			log.Warn("question not in form", zap.String("question", m.Question))
			continue
		}
		updates = append(updates, gateway.ChoiceUpdate{Item: item, Choices: choices})
		fields = append(fields, m.Question)
	}
	return updates, fields
}

// Choices returns the sorted distinct non-blank values of column col.
func Choices(t gateway.Table, col int) []string {
	var values []string
	for _, row := range t.Rows {
		if v := gateway.Cell(row, col); v != "" {
			values = append(values, v)
		}
	}
	slices.Sort(values)
	return slices.Compact(values)
}

// FindItem matches a question by trimmed, case-insensitive title.
func FindItem(form gateway.Form, title string) (gateway.FormItem, bool) {
	for _, item := range form.Items {
		if strings.EqualFold(strings.TrimSpace(item.Title), strings.TrimSpace(title)) {
			return item, true
		}
	}
	return gateway.FormItem{}, false
}
