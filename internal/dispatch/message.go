package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway/smtp"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
	"github.com/Shailesh-Murmu/AutoMpp/internal/runstate"
	"github.com/Shailesh-Murmu/AutoMpp/internal/taskdef"
)

// Recipient columns, in lookup order.
var recipientColumns = []string{"Email", "Email ID"}

// sentDates is the email_tasks blob for one task: date -> sent.
type sentDates map[string]bool

// RunMessage sends a scheduled message when its date is today and it has not
// been sent today. The sent flag is recorded once the recipient loop ends,
// unless every attempted recipient failed.
func (e *Engine) RunMessage(ctx context.Context, task taskdef.MessageTask, state *runstate.State) outcome.Result {
	category := string(taskdef.CategoryMessage)
	if err := task.Validate(); err != nil {
		return outcome.Fail(category, task.Title, outcome.Configuration(task.Title, "%v", err))
	}
	_, today := e.today()
	if task.Date != today {
		return outcome.Skip(category, task.Title, "scheduled for "+task.Date)
	}
	sent := sentDates{}
	if _, err := state.Get(runstate.CategoryMessage, task.Title, &sent); err != nil {
		e.logger.Warn("discarding unreadable email state", zap.String("task", task.Title), zap.Error(err))
		sent = sentDates{}
	}
	if sent[today] {
		return outcome.Skip(category, task.Title, "already sent today")
	}

	result := e.deliverMessage(ctx, task)
	if result.Status == outcome.Cancelled || result.Status == outcome.Failed {
		return result
	}
	sent[today] = true
	if err := state.Put(runstate.CategoryMessage, task.Title, sent); err != nil {
		return outcome.Fail(category, task.Title, err)
	}
	return result
}

// SendMessageNow sends a message task immediately regardless of its date and
// without consulting or recording state.
func (e *Engine) SendMessageNow(ctx context.Context, task taskdef.MessageTask) outcome.Result {
	if err := task.Validate(); err != nil {
		return outcome.Fail(string(taskdef.CategoryMessage), task.Title, outcome.Configuration(task.Title, "%v", err))
	}
	return e.deliverMessage(ctx, task)
}

func (e *Engine) deliverMessage(ctx context.Context, task taskdef.MessageTask) outcome.Result {
	category := string(taskdef.CategoryMessage)
	log := e.logger.With(zap.String("task", task.Title))

	table, err := e.tables.Read(ctx, task.Excel)
	if err != nil {
		return outcome.Fail(category, task.Title, gateway.Classify(task.Title, err))
	}
	columns := make([]int, 0, len(recipientColumns))
	for _, name := range recipientColumns {
		if i := table.Column(name); i >= 0 {
			columns = append(columns, i)
		}
	}
	if len(columns) == 0 {
		return outcome.Fail(category, task.Title, outcome.Configuration(task.Title, "%s has no Email or Email ID column", task.Excel))
	}

	cc := smtp.ParseCC(task.CC)
	var (
		succeeded, failed int
		lastErr           error
		first             = true
	)
	for i, row := range table.Rows {
		recipient := ""
		for _, col := range columns {
			if recipient = gateway.Cell(row, col); recipient != "" {
				break
			}
		}
		if recipient == "" {
			log.Warn("row has no recipient", zap.Int("row", i+2))
			e.report(i+1, len(table.Rows))
			continue
		}
		err := e.send(ctx, first, gateway.Message{To: recipient, CC: cc, Subject: task.Subject, Body: task.Msg})
		first = false
		if err != nil {
			if outcome.IsCancelled(err) {
				r := outcome.Fail(category, task.Title, err)
				r.Succeeded, r.Failed = succeeded, failed
				return r
			}
			failed++
			lastErr = fmt.Errorf("%s: %w", recipient, err)
			log.Error("send failed", zap.String("recipient", recipient), zap.Error(err))
			if sendFailure(err) {
				break
			}
		} else {
			succeeded++
			log.Info("message sent", zap.String("recipient", recipient))
		}
		e.report(i+1, len(table.Rows))
	}
	result := outcome.Counted(category, task.Title, succeeded, failed, lastErr)
	if succeeded+failed == 0 {
		result.Detail = "no recipients"
	} else {
		result.Detail = fmt.Sprintf("%d sent, %d failed", succeeded, failed)
	}
	return result
}
