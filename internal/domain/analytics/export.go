package analytics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/taskmaster/pulse/internal/domain/entities"
)

type ExportSummary struct {
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	PendingTasks   int       `json:"pending_tasks"`
	ExportDate     time.Time `json:"export_date"`
	User           string    `json:"user"`
}

// Export is a full-fidelity dump of a user's tasks.
type Export struct {
	Header
	Summary ExportSummary         `json:"summary"`
	Tasks   []entities.TaskRecord `json:"tasks"`
}

func BuildExport(owner string, tasks []*entities.Task, now time.Time) Export {
	done := len(completed(tasks))
	return Export{
		Header: newHeader(now),
		Summary: ExportSummary{
			TotalTasks:     len(tasks),
			CompletedTasks: done,
			PendingTasks:   len(tasks) - done,
			ExportDate:     now,
			User:           owner,
		},
		Tasks: entities.NewTaskRecords(tasks, now),
	}
}

// ExportHeader is the column layout of the tabular export.
var ExportHeader = []string{
	"ID", "Title", "Category", "Priority", "Impact", "Status",
	"Progress", "Due Date", "Created At", "Completed At",
}

// Rows flattens the export into tabular records matching ExportHeader.
func (e Export) Rows() [][]string {
	rows := make([][]string, 0, len(e.Tasks))
	for _, r := range e.Tasks {
		completedAt := ""
		if r.CompletedAt != nil {
			completedAt = r.CompletedAt.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			r.ID.String(),
			r.Title,
			r.Category,
			strconv.Itoa(r.Priority),
			strconv.Itoa(r.Impact),
			string(r.Status),
			fmt.Sprintf("%d%%", r.Progress),
			r.DueDate.UTC().Format("2006-01-02"),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			completedAt,
		})
	}
	return rows
}

// Filename is the suggested download name for the given extension.
func (e Export) Filename(ext string) string {
	return fmt.Sprintf("tasks_export_%s.%s", e.Summary.ExportDate.UTC().Format("20060102"), ext)
}

// UrgentPending lists up to limit pending tasks with priority 1 or 2.
func UrgentPending(tasks []*entities.Task, limit int) []entities.TaskPointer {
	out := []entities.TaskPointer{}
	for _, t := range tasks {
		if len(out) >= limit {
			break
		}
		if t.Status == entities.TaskStatusPending && t.Priority <= 2 {
			out = append(out, entities.TaskPointer{ID: t.ID.String(), Title: t.Title, Reason: "High priority"})
		}
	}
	return out
}
