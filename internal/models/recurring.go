package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurringDefinition is a row of recurring_definitions. The template header lives on the
// same row; its lines are in recurring_template_lines.
type RecurringDefinition struct {
	DefinitionID        string     `db:"definition_id"`
	WorkplaceID         string     `db:"workplace_id"`
	Name                string     `db:"name"`
	Description         string     `db:"description"`
	Frequency           string     `db:"frequency"`
	Interval            int        `db:"interval_count"`
	CustomSchedule      *string    `db:"custom_schedule"`
	StartDate           time.Time  `db:"start_date"`
	EndType             string     `db:"end_type"`
	EndAfterOccurrences *int       `db:"end_after_occurrences"`
	EndDate             *time.Time `db:"end_date"`
	Status              string     `db:"status"`
	LastRunDate         *time.Time `db:"last_run_date"`
	NextRunDate         *time.Time `db:"next_run_date"`
	TotalOccurrences    int        `db:"total_occurrences"`
	TemplateDescription string     `db:"template_description"`
	TemplateCurrency    string     `db:"template_currency_code"`
	AuditFields
}

// RecurringTemplateLine is a row of recurring_template_lines.
type RecurringTemplateLine struct {
	DefinitionID string            `db:"definition_id"`
	LineNo       int               `db:"line_no"`
	AccountID    string            `db:"account_id"`
	Debit        decimal.Decimal   `db:"debit"`
	Credit       decimal.Decimal   `db:"credit"`
	Description  string            `db:"description"`
	TaxCode      *string           `db:"tax_code"`
	Department   *string           `db:"department"`
	Project      *string           `db:"project"`
	CustomFields map[string]string `db:"custom_fields"` // jsonb
}

// RecurringOccurrence is a row of recurring_occurrences.
type RecurringOccurrence struct {
	OccurrenceID     string     `db:"occurrence_id"`
	DefinitionID     string     `db:"definition_id"`
	ScheduledDate    time.Time  `db:"scheduled_date"`
	RunDate          *time.Time `db:"run_date"`
	Status           string     `db:"status"`
	ErrorMessage     *string    `db:"error_message"`
	JournalEntryIDs  []string   `db:"journal_entry_ids"`
	RunID            string     `db:"run_id"`
	CreatedAt        time.Time  `db:"created_at"`
	CreatedBy        string     `db:"created_by"`
	LastTransitionAt time.Time  `db:"last_transition_at"`
}
