package taskdef

import (
	"fmt"
	"regexp"
	"strings"
)

type Category string

const (
	CategorySync         Category = "drive_tasks"
	CategoryMessage      Category = "emails"
	CategoryReconcile    Category = "track_tasks"
	CategorySchemaUpdate Category = "form_updater_tasks"
	CategoryFollowUp     Category = "reminders"
)

// Categories lists every category in cycle order.
var Categories = []Category{
	CategorySync,
	CategoryMessage,
	CategoryReconcile,
	CategorySchemaUpdate,
	CategoryFollowUp,
}

func ParseCategory(raw string) (Category, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "drive_tasks", "drive", "sync":
		return CategorySync, nil
	case "emails", "email", "message":
		return CategoryMessage, nil
	case "track_tasks", "track", "tracker", "reconcile":
		return CategoryReconcile, nil
	case "form_updater_tasks", "form", "form_updater", "schema":
		return CategorySchemaUpdate, nil
	case "reminders", "reminder", "followup", "follow-up":
		return CategoryFollowUp, nil
	default:
		return "", fmt.Errorf("unknown task category %q", raw)
	}
}

// Task is implemented by exactly the five category structs below.
type Task interface {
	TaskTitle() string
	TaskCategory() Category
	Validate() error
	isTask()
}

type SyncTask struct {
	Title    string `json:"title"`
	FolderID string `json:"folder_id"`
	Path     string `json:"path"`
}

type MessageTask struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Excel   string `json:"excel"`
	Subject string `json:"subject"`
	Msg     string `json:"msg"`
	CC      string `json:"cc,omitempty"`
}

type ReconcileTask struct {
	Title           string `json:"title"`
	ResponseSheetID string `json:"response_sheet_id"`
	MasterExcel     string `json:"master_excel"`
	ResultPath      string `json:"result_path"`
}

type SchemaUpdateTask struct {
	Title        string `json:"title"`
	TrackerTitle string `json:"tracker_title"`
	FormLink     string `json:"form_link"`
}

type FollowUpTask struct {
	Title        string   `json:"title"`
	TrackerTitle string   `json:"tracker_title"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	Frequency    string   `json:"frequency"`
	Dates        []string `json:"dates,omitempty"`
	Subject      string   `json:"subject"`
	Message      string   `json:"message"`
}

const (
	FrequencyEveryday    = "Everyday"
	FrequencySelectDates = "Select Dates"
)

func (t SyncTask) TaskTitle() string         { return t.Title }
func (t MessageTask) TaskTitle() string      { return t.Title }
func (t ReconcileTask) TaskTitle() string    { return t.Title }
func (t SchemaUpdateTask) TaskTitle() string { return t.Title }
func (t FollowUpTask) TaskTitle() string     { return t.Title }

func (SyncTask) TaskCategory() Category         { return CategorySync }
func (MessageTask) TaskCategory() Category      { return CategoryMessage }
func (ReconcileTask) TaskCategory() Category    { return CategoryReconcile }
func (SchemaUpdateTask) TaskCategory() Category { return CategorySchemaUpdate }
func (FollowUpTask) TaskCategory() Category     { return CategoryFollowUp }

func (SyncTask) isTask()         {}
func (MessageTask) isTask()      {}
func (ReconcileTask) isTask()    {}
func (SchemaUpdateTask) isTask() {}
func (FollowUpTask) isTask()     {}

func (t SyncTask) Validate() error {
	return requireFields(t.Title, "folder_id", t.FolderID, "path", t.Path)
}

func (t MessageTask) Validate() error {
	return requireFields(t.Title, "date", t.Date, "excel", t.Excel, "subject", t.Subject)
}

func (t ReconcileTask) Validate() error {
	return requireFields(t.Title, "response_sheet_id", t.ResponseSheetID, "master_excel", t.MasterExcel, "result_path", t.ResultPath)
}

func (t SchemaUpdateTask) Validate() error {
	return requireFields(t.Title, "tracker_title", t.TrackerTitle, "form_link", t.FormLink)
}

func (t FollowUpTask) Validate() error {
	if err := requireFields(t.Title, "tracker_title", t.TrackerTitle, "start_date", t.StartDate, "end_date", t.EndDate, "subject", t.Subject); err != nil {
		return err
	}
	switch t.Frequency {
	case FrequencyEveryday, FrequencySelectDates:
		return nil
	default:
		return fmt.Errorf("task %q: unknown frequency %q", t.Title, t.Frequency)
	}
}

func requireFields(title string, pairs ...string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("task title is required")
	}
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("task %q: missing %s", title, strings.Join(missing, ", "))
	}
	return nil
}

var googleIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
}

// ExtractGoogleID pulls the resource ID out of a Drive, Sheets or Forms URL.
// Input that matches no known pattern is returned unchanged.
func ExtractGoogleID(urlOrID string) string {
	urlOrID = strings.TrimSpace(urlOrID)
	for _, pattern := range googleIDPatterns {
		if m := pattern.FindStringSubmatch(urlOrID); m != nil {
			return m[1]
		}
	}
	return urlOrID
}
