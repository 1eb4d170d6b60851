package domain

import (
	"strconv"

	"github.com/kalambet/localdesk/internal/csvio"
	"github.com/kalambet/localdesk/internal/interpret"
	"github.com/kalambet/localdesk/internal/view"
)

// Ticket is a help-desk support request.
type Ticket struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Customer    string `json:"customer"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

var (
	ticketCategories = []string{"billing", "technical", "account", "general"}
	ticketPriorities = []string{"low", "medium", "high", "urgent"}
)

func ticketSeed() []Ticket {
	return []Ticket{
		{ID: "1", Subject: "Cannot log in", Description: "Password reset email never arrives", Customer: "Dana Ortiz", Category: "account", Priority: "high", Status: "open", CreatedAt: "2024-05-28"},
		{ID: "2", Subject: "Double charge on invoice", Description: "March invoice was billed twice", Customer: "Lee Park", Category: "billing", Priority: "urgent", Status: "pending", CreatedAt: "2024-05-30"},
		{ID: "3", Subject: "Export to CSV", Description: "Is there a way to export my data?", Customer: "Sam Reid", Category: "general", Priority: "low", Status: "resolved", CreatedAt: "2024-06-01"},
	}
}

var tickets = spec[Ticket]{
	name: "tickets",
	key:  "helpdesk_tickets",
	seed: ticketSeed,
	defaults: func() Ticket {
		return Ticket{Category: "general", Priority: "medium", Status: "open", CreatedAt: today()}
	},
	id:    func(t Ticket) string { return t.ID },
	setID: func(t *Ticket, id string) { t.ID = id },
	schema: view.NewSchema(
		view.TextField("subject", true, func(t Ticket) string { return t.Subject }),
		view.TextField("description", true, func(t Ticket) string { return t.Description }),
		view.TextField("customer", true, func(t Ticket) string { return t.Customer }),
		view.TextField("category", false, func(t Ticket) string { return t.Category }),
		view.TextField("priority", false, func(t Ticket) string { return t.Priority }),
		view.TextField("status", false, func(t Ticket) string { return t.Status }),
		view.DateField("createdAt", func(t Ticket) string { return t.CreatedAt }),
	),
	form: interpret.Form{
		Name:        "ticket",
		Instruction: "Triage the customer message into a support ticket.",
		Fields: []interpret.Field{
			{Name: "subject", Kind: interpret.FieldText, Anchor: true, Description: "one-line summary of the problem", Cues: []string{"subject", "summary", "title"}},
			{Name: "category", Kind: interpret.FieldChoice, Choices: ticketCategories},
			{Name: "priority", Kind: interpret.FieldChoice, Choices: ticketPriorities, Cues: []string{"priority", "urgency", "severity"}},
			{Name: "description", Kind: interpret.FieldText, Cues: []string{"description", "details", "issue"}},
		},
	},
	columns: []csvio.Column[Ticket]{
		textCol("Subject", func(t Ticket) string { return t.Subject }, func(t *Ticket, s string) { t.Subject = s }),
		textCol("Description", func(t Ticket) string { return t.Description }, func(t *Ticket, s string) { t.Description = s }),
		textCol("Customer", func(t Ticket) string { return t.Customer }, func(t *Ticket, s string) { t.Customer = s }),
		textCol("Category", func(t Ticket) string { return t.Category }, func(t *Ticket, s string) { t.Category = s }),
		textCol("Priority", func(t Ticket) string { return t.Priority }, func(t *Ticket, s string) { t.Priority = s }),
		textCol("Status", func(t Ticket) string { return t.Status }, func(t *Ticket, s string) { t.Status = s }),
		dateCol("Created", func(t Ticket) string { return t.CreatedAt }, func(t *Ticket, s string) { t.CreatedAt = s }),
	},
	summary: func(rows []Ticket, _ string) []Stat {
		byStatus := countBy(rows, func(t Ticket) string { return t.Status })
		urgent := 0
		for _, t := range rows {
			if t.Priority == "urgent" && t.Status != "resolved" {
				urgent++
			}
		}
		return []Stat{
			{Label: "Open", Value: strconv.Itoa(byStatus["open"] + byStatus["pending"])},
			{Label: "Urgent", Value: strconv.Itoa(urgent)},
			{Label: "Resolved", Value: strconv.Itoa(byStatus["resolved"])},
		}
	},
}
