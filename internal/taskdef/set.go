package taskdef

import (
	"fmt"
	"strings"
)

type Settings struct {
	SMTPEmail    string `json:"smtp_email,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`
}

// Set is the full task configuration. It is immutable for the duration of
// one cycle; edits go through Upsert and Delete followed by Store.Save.
type Set struct {
	Emails       []MessageTask      `json:"emails,omitempty"`
	Drive        []SyncTask         `json:"drive_tasks,omitempty"`
	Track        []ReconcileTask    `json:"track_tasks,omitempty"`
	FormUpdaters []SchemaUpdateTask `json:"form_updater_tasks,omitempty"`
	Reminders    []FollowUpTask     `json:"reminders,omitempty"`
	Settings     *Settings          `json:"settings,omitempty"`
}

func (s *Set) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.Emails) == 0 && len(s.Drive) == 0 && len(s.Track) == 0 &&
		len(s.FormUpdaters) == 0 && len(s.Reminders) == 0
}

// Tasks returns the tasks of one category in configured order.
func (s *Set) Tasks(category Category) []Task {
	if s == nil {
		return nil
	}
	var out []Task
	switch category {
	case CategorySync:
		for _, t := range s.Drive {
			out = append(out, t)
		}
	case CategoryMessage:
		for _, t := range s.Emails {
			out = append(out, t)
		}
	case CategoryReconcile:
		for _, t := range s.Track {
			out = append(out, t)
		}
	case CategorySchemaUpdate:
		for _, t := range s.FormUpdaters {
			out = append(out, t)
		}
	case CategoryFollowUp:
		for _, t := range s.Reminders {
			out = append(out, t)
		}
	}
	return out
}

func (s *Set) Find(category Category, title string) (Task, bool) {
	for _, t := range s.Tasks(category) {
		if t.TaskTitle() == title {
			return t, true
		}
	}
	return nil, false
}

// Reconcile looks up the tracker task that schema-update and follow-up tasks
// reference by title.
func (s *Set) Reconcile(title string) (ReconcileTask, bool) {
	if s == nil {
		return ReconcileTask{}, false
	}
	for _, t := range s.Track {
		if t.Title == title {
			return t, true
		}
	}
	return ReconcileTask{}, false
}

// Upsert replaces the task with the same category and title, or appends it.
func (s *Set) Upsert(task Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	if err := task.Validate(); err != nil {
		return err
	}
	switch t := task.(type) {
	case SyncTask:
		s.Drive = upsert(s.Drive, t)
	case MessageTask:
		s.Emails = upsert(s.Emails, t)
	case ReconcileTask:
		s.Track = upsert(s.Track, t)
	case SchemaUpdateTask:
		s.FormUpdaters = upsert(s.FormUpdaters, t)
	case FollowUpTask:
		s.Reminders = upsert(s.Reminders, t)
	}
	return nil
}

func upsert[T Task](list []T, task T) []T {
	for i := range list {
		if list[i].TaskTitle() == task.TaskTitle() {
			list[i] = task
			return list
		}
	}
	return append(list, task)
}

type DeleteReport struct {
	Removed      bool
	Reminders    int
	FormUpdaters int
}

// Delete removes a task. Removing a tracker also removes every reminder and
// form updater linked to it.
func (s *Set) Delete(category Category, title string) DeleteReport {
	var report DeleteReport
	switch category {
	case CategorySync:
		s.Drive, report.Removed = remove(s.Drive, func(t SyncTask) bool { return t.Title == title })
	case CategoryMessage:
		s.Emails, report.Removed = remove(s.Emails, func(t MessageTask) bool { return t.Title == title })
	case CategorySchemaUpdate:
		s.FormUpdaters, report.Removed = remove(s.FormUpdaters, func(t SchemaUpdateTask) bool { return t.Title == title })
	case CategoryFollowUp:
		s.Reminders, report.Removed = remove(s.Reminders, func(t FollowUpTask) bool { return t.Title == title })
	case CategoryReconcile:
		s.Track, report.Removed = remove(s.Track, func(t ReconcileTask) bool { return t.Title == title })
		if !report.Removed {
			return report
		}
		before := len(s.Reminders)
		s.Reminders, _ = remove(s.Reminders, func(t FollowUpTask) bool { return t.TrackerTitle == title })
		report.Reminders = before - len(s.Reminders)
		before = len(s.FormUpdaters)
		s.FormUpdaters, _ = remove(s.FormUpdaters, func(t SchemaUpdateTask) bool { return t.TrackerTitle == title })
		report.FormUpdaters = before - len(s.FormUpdaters)
	}
	return report
}

func remove[T any](list []T, match func(T) bool) ([]T, bool) {
	out := list[:0]
	removed := false
	for _, item := range list {
		if match(item) {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out, removed
}

// SMTPCredentials returns the sender override from settings, falling back to
// the given defaults per field.
func (s *Set) SMTPCredentials(defaultUser, defaultPassword string) (string, string) {
	user, password := defaultUser, defaultPassword
	if s == nil || s.Settings == nil {
		return user, password
	}
	if v := strings.TrimSpace(s.Settings.SMTPEmail); v != "" {
		user = v
	}
	if v := s.Settings.SMTPPassword; v != "" {
		password = v
	}
	return user, password
}
