package outcome

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrCredential    = errors.New("credential error")
	ErrTransient     = errors.New("transient io error")
	ErrCancelled     = errors.New("stopped by user")
	ErrDataIntegrity = errors.New("data integrity error")
)

// Error attaches a taxonomy kind and the owning task to a failure.
type Error struct {
	Kind error
	Task string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Task != "" {
		msg = fmt.Sprintf("%s: %s", e.Task, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Configuration(task, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Task: task, Msg: fmt.Sprintf(format, args...)}
}

func Credential(err error) error {
	return &Error{Kind: ErrCredential, Msg: "credentials unavailable", Err: err}
}

func Transient(task string, err error) error {
	return &Error{Kind: ErrTransient, Task: task, Msg: "remote call failed", Err: err}
}

func DataIntegrity(task, format string, args ...any) error {
	return &Error{Kind: ErrDataIntegrity, Task: task, Msg: fmt.Sprintf(format, args...)}
}

// IsCancelled reports whether err came from cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

type Status string

const (
	Success   Status = "success"
	Skipped   Status = "skipped"
	Partial   Status = "partial"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// Result is the explicit per-task outcome the orchestrator branches on.
type Result struct {
	Category  string `json:"category"`
	Task      string `json:"task"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Succeeded int    `json:"succeeded,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

func Done(category, task, detail string) Result {
	return Result{Category: category, Task: task, Status: Success, Detail: detail}
}

func Skip(category, task, detail string) Result {
	return Result{Category: category, Task: task, Status: Skipped, Detail: detail}
}

// Fail builds a failed result, or a cancelled one when err is a
// cancellation.
func Fail(category, task string, err error) Result {
	status := Failed
	detail := ""
	if IsCancelled(err) {
		status = Cancelled
		detail = ErrCancelled.Error()
	}
	r := Result{Category: category, Task: task, Status: status, Detail: detail, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Counted derives a status from per-unit success and failure counts.
func Counted(category, task string, succeeded, failed int, lastErr error) Result {
	r := Result{Category: category, Task: task, Succeeded: succeeded, Failed: failed, Err: lastErr}
	switch {
	case failed == 0 && succeeded == 0:
		r.Status = Skipped
		r.Detail = "nothing changed"
	case failed == 0:
		r.Status = Success
	case succeeded == 0:
		r.Status = Failed
	default:
		r.Status = Partial
	}
	if lastErr != nil {
		r.Error = lastErr.Error()
	}
	return r
}

// OK reports whether the task completed its unit of work.
func (r Result) OK() bool {
	return r.Status == Success || r.Status == Skipped || r.Status == Partial
}

func (r Result) String() string {
	s := fmt.Sprintf("%s %q: %s", r.Category, r.Task, r.Status)
	if r.Detail != "" {
		s += " (" + r.Detail + ")"
	}
	if r.Error != "" && r.Status != Cancelled {
		s += ": " + r.Error
	}
	return s
}
