package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/reconcile"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

// reminderLog is the reminder_tasks blob for one task: recipient -> date.
type reminderLog map[string]string

// Eligible reports whether a follow-up fires on day: inside the inclusive
// date range, and either every day or on a listed day of the month. A
// listed day matches only its canonical form, so "05" never fires; an entry
// that is not a number at all is a data-integrity error.
func Eligible(task taskdef.FollowUpTask, day time.Time) (bool, error) {
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(task.StartDate), day.Location())
	if err != nil {
		return false, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(task.EndDate), day.Location())
	if err != nil {
		return false, fmt.Errorf("end_date: %w", err)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if day.Before(start) || day.After(end) {
		return false, nil
	}
	switch task.Frequency {
	case taskdef.FrequencyEveryday:
		return true, nil
	case taskdef.FrequencySelectDates:
		want, match := strconv.Itoa(day.Day()), false
		for _, d := range task.Dates {
			d = strings.TrimSpace(d)
			if _, err := strconv.Atoi(d); err != nil {
				return false, outcome.DataIntegrity(task.Title, "dates entry %q is not a day of the month", d)
			}
			if d == want {
				match = true
			}
		}
		return match, nil
	default:
		return false, fmt.Errorf("unknown frequency %q", task.Frequency)
	}
}

// RunFollowUp reminds every roster row the linked tracker marks as not
// uploaded. force skips the date-range and frequency check; a recipient
// already reminded today is never reminded again the same day.
func (e *Engine) RunFollowUp(ctx context.Context, task taskdef.FollowUpTask, tasks *taskdef.Set, state *runstate.State, force bool) outcome.Result {
	category := string(taskdef.CategoryFollowUp)
	fail := func(err error) outcome.Result { return outcome.Fail(category, task.Title, err) }
	log := e.logger.With(zap.String("task", task.Title))
	if err := task.Validate(); err != nil {
		return fail(outcome.Configuration(task.Title, "%v", err))
	}

	day, today := e.today()
	if !force {
		ok, err := Eligible(task, day)
		if errors.Is(err, outcome.ErrDataIntegrity) {
			return fail(err)
		}
		if err != nil {
			return fail(outcome.Configuration(task.Title, "%v", err))
		}
		if !ok {
			return outcome.Skip(category, task.Title, "not a send day")
		}
	}

	tracker, ok := tasks.Reconcile(task.TrackerTitle)
	if !ok {
		return fail(outcome.Configuration(task.Title, "tracker task %q not found", task.TrackerTitle))
	}
	if _, err := os.Stat(tracker.ResultPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(outcome.Configuration(task.Title, "tracker %s has not been generated", tracker.ResultPath))
		}
		return fail(err)
	}
	table, err := e.tables.Read(ctx, tracker.ResultPath)
	if err != nil {
		return fail(gateway.Classify(task.Title, err))
	}
	statusCol, emailCol := table.Column(reconcile.ColumnUploaded), table.Column(reconcile.ColumnEmailID)
	if statusCol < 0 || emailCol < 0 {
		return fail(outcome.Configuration(task.Title, "tracker %s lacks %s or %s column", tracker.ResultPath, reconcile.ColumnUploaded, reconcile.ColumnEmailID))
	}

	sent := reminderLog{}
	if _, err := state.Get(runstate.CategoryFollowUp, task.Title, &sent); err != nil {
		log.Warn("discarding unreadable reminder state", zap.Error(err))
		sent = reminderLog{}
	}

	var (
		succeeded, failed, already int
		lastErr                    error
		first                      = true
	)
	for i, row := range table.Rows {
		recipient := gateway.Cell(row, emailCol)
		if gateway.Cell(row, statusCol) != reconcile.StatusNo || recipient == "" {
			e.report(i+1, len(table.Rows))
			continue
		}
		if sent[recipient] == today {
			already++
			log.Info("reminder already sent today", zap.String("recipient", recipient))
			e.report(i+1, len(table.Rows))
			continue
		}
		err := e.send(ctx, first, gateway.Message{To: recipient, Subject: task.Subject, Body: task.Message})
		first = false
		if err != nil {
			if outcome.IsCancelled(err) {
				r := fail(err)
				r.Succeeded, r.Failed = succeeded, failed
				return r
			}
			failed++
			lastErr = fmt.Errorf("%s: %w", recipient, err)
			log.Error("reminder failed", zap.String("recipient", recipient), zap.Error(err))
			if sendFailure(err) {
				break
			}
			e.report(i+1, len(table.Rows))
			continue
		}
		succeeded++
		sent[recipient] = today
		if err := state.Put(runstate.CategoryFollowUp, task.Title, sent); err != nil {
			log.Error("recording reminder failed", zap.Error(err))
		}
		log.Info("reminder sent", zap.String("recipient", recipient))
		e.report(i+1, len(table.Rows))
	}

	result := outcome.Counted(category, task.Title, succeeded, failed, lastErr)
	result.Detail = fmt.Sprintf("%d sent, %d failed, %d already reminded today", succeeded, failed, already)
	return result
}
