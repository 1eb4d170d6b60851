package domain

import (
	"strconv"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Task is a task-board card. EstimatedTime is in minutes.
type Task struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	Status        string   `json:"status"`
	EstimatedTime int      `json:"estimatedTime"`
	Tags          []string `json:"tags"`
	DueDate       string   `json:"dueDate"`
	CreatedAt     string   `json:"createdAt"`
}

var (
	taskPriorities = []string{"low", "medium", "high"}
	taskStatuses   = []string{"todo", "in-progress", "done"}
)

func taskSeed() []Task {
	return []Task{
		{ID: "1", Title: "Plan weekly groceries", Description: "Check the pantry, then buy milk and eggs", Category: "Personal", Priority: "medium", Status: "todo", EstimatedTime: 30, Tags: []string{"home"}, DueDate: "2024-06-07", CreatedAt: "2024-06-01"},
		{ID: "2", Title: "Quarterly report", Description: "Draft the Q2 numbers for the team review", Category: "Work", Priority: "high", Status: "in-progress", EstimatedTime: 120, Tags: []string{"finance", "review"}, DueDate: "2024-06-14", CreatedAt: "2024-06-02"},
		{ID: "3", Title: "Book dentist", Description: "Call the clinic for a check-up", Category: "Health", Priority: "low", Status: "done", EstimatedTime: 10, CreatedAt: "2024-06-03"},
	}
}

var tasks = spec[Task]{
	name: "tasks",
	key:  "taskboard_tasks",
	seed: taskSeed,
	defaults: func() Task {
		return Task{
			Category:  "General",
			Priority:  "medium",
			Status:    "todo",
			Tags:      []string{},
			CreatedAt: today(),
		}
	},
	id:    func(t Task) string { return t.ID },
	setID: func(t *Task, id string) { t.ID = id },
	schema: view.NewSchema(
		view.TextField("title", true, func(t Task) string { return t.Title }),
		view.TextField("description", true, func(t Task) string { return t.Description }),
		view.TextField("category", true, func(t Task) string { return t.Category }),
		view.TextField("priority", false, func(t Task) string { return t.Priority }),
		view.TextField("status", false, func(t Task) string { return t.Status }),
		view.NumberField("estimatedTime", func(t Task) float64 { return float64(t.EstimatedTime) }),
		view.ListField("tags", func(t Task) []string { return t.Tags }),
		view.DateField("dueDate", func(t Task) string { return t.DueDate }),
		view.DateField("createdAt", func(t Task) string { return t.CreatedAt }),
	),
	form: interpret.Form{
		Name:        "task",
		Instruction: "Turn the request into a task for a task board.",
		Fields: []interpret.Field{
			{Name: "title", Kind: interpret.FieldText, Anchor: true, Description: "short imperative title", Cues: []string{"title", "task", "name"}},
			{Name: "description", Kind: interpret.FieldText, Description: "one or two sentences of detail", Cues: []string{"description", "details", "notes"}},
			{Name: "category", Kind: interpret.FieldText, Description: "e.g. Work, Personal, Health"},
			{Name: "priority", Kind: interpret.FieldChoice, Choices: taskPriorities},
			{
				Name:        "estimatedTime",
				Kind:        interpret.FieldInteger,
				Description: "estimated minutes",
				Paths:       []string{"$.estimatedTime", "$.estimated_time", "$.minutes", "$.duration"},
				Cues:        []string{"estimated time", "estimate", "duration", "minutes"},
			},
			{Name: "tags", Kind: interpret.FieldList, Cues: []string{"tags", "labels"}},
		},
	},
	columns: []csvio.Column[Task]{
		textCol("Title", func(t Task) string { return t.Title }, func(t *Task, s string) { t.Title = s }),
		textCol("Description", func(t Task) string { return t.Description }, func(t *Task, s string) { t.Description = s }),
		textCol("Category", func(t Task) string { return t.Category }, func(t *Task, s string) { t.Category = s }),
		textCol("Priority", func(t Task) string { return t.Priority }, func(t *Task, s string) { t.Priority = s }),
		textCol("Status", func(t Task) string { return t.Status }, func(t *Task, s string) { t.Status = s }),
		intCol("Estimated Time (min)", func(t Task) int { return t.EstimatedTime }, func(t *Task, n int) { t.EstimatedTime = n }),
		listCol("Tags", func(t Task) []string { return t.Tags }, func(t *Task, l []string) { t.Tags = l }),
		dateCol("Due Date", func(t Task) string { return t.DueDate }, func(t *Task, s string) { t.DueDate = s }),
		dateCol("Created", func(t Task) string { return t.CreatedAt }, func(t *Task, s string) { t.CreatedAt = s }),
	},
	summary: func(rows []Task, _ string) []Stat {
		byStatus := countBy(rows, func(t Task) string { return t.Status })
		minutes := 0
		for _, t := range rows {
			if t.Status != "done" {
				minutes += t.EstimatedTime
			}
		}
		return []Stat{
			{Label: "Open", Value: strconv.Itoa(len(rows) - byStatus["done"])},
			{Label: "Done", Value: strconv.Itoa(byStatus["done"])},
			{Label: "Remaining (min)", Value: strconv.Itoa(minutes)},
		}
	},
}
