package dto

import (
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/shopspring/decimal"
)

// TemplateLineRequest defines one line of an entry template.
// Exactly one of Debit and Credit must be positive.
type TemplateLineRequest struct {
	AccountID    string            `json:"accountID" binding:"required"`
	Debit        decimal.Decimal   `json:"debit"`
	Credit       decimal.Decimal   `json:"credit"`
	Description  string            `json:"description" binding:"max=500"`
	TaxCode      *string           `json:"taxCode"`
	Department   *string           `json:"department"`
	Project      *string           `json:"project"`
	CustomFields map[string]string `json:"customFields"`
}

// TemplateRequest defines the reusable entry blueprint of a definition.
type TemplateRequest struct {
	Description  string                `json:"description"`
	CurrencyCode string                `json:"currencyCode" binding:"required,len=3"`
	Lines        []TemplateLineRequest `json:"lines" binding:"required,min=2,dive"`
}

// CreateRecurringJournalRequest defines the data needed to create a recurring journal definition.
type CreateRecurringJournalRequest struct {
	Name                string           `json:"name" binding:"required,max=255"`
	Description         string           `json:"description"`
	Frequency           domain.Frequency `json:"frequency" binding:"required,frequency"`
	Interval            int              `json:"interval" binding:"required,min=1"`
	CustomSchedule      string           `json:"customSchedule" binding:"required_if=Frequency custom"`
	StartDate           string           `json:"startDate" binding:"required,datetime=2006-01-02"`
	EndType             domain.EndType   `json:"endType" binding:"required,end_type"`
	EndAfterOccurrences *int             `json:"endAfterOccurrences" binding:"omitempty,min=1"`
	EndDate             *string          `json:"endDate" binding:"omitempty,datetime=2006-01-02"`
	Template            TemplateRequest  `json:"template" binding:"required"`
}

// UpdateRecurringJournalRequest defines the data allowed for updating a definition.
// Use pointers to distinguish between zero-value updates and fields not provided.
// Schedule and template fields are rejected once the definition is completed or cancelled.
type UpdateRecurringJournalRequest struct {
	Name                *string           `json:"name" binding:"omitempty,max=255"`
	Description         *string           `json:"description"`
	Frequency           *domain.Frequency `json:"frequency" binding:"omitempty,frequency"`
	Interval            *int              `json:"interval" binding:"omitempty,min=1"`
	CustomSchedule      *string           `json:"customSchedule"`
	EndType             *domain.EndType   `json:"endType" binding:"omitempty,end_type"`
	EndAfterOccurrences *int              `json:"endAfterOccurrences" binding:"omitempty,min=1"`
	EndDate             *string           `json:"endDate" binding:"omitempty,datetime=2006-01-02"`
	Template            *TemplateRequest  `json:"template"`
}

// TouchesSchedule reports whether the request changes recurrence settings.
func (r UpdateRecurringJournalRequest) TouchesSchedule() bool {
	return r.Frequency != nil || r.Interval != nil || r.CustomSchedule != nil ||
		r.EndType != nil || r.EndAfterOccurrences != nil || r.EndDate != nil
}

// ListRecurringJournalsParams defines query parameters for listing definitions.
type ListRecurringJournalsParams struct {
	Status []domain.DefinitionStatus `form:"status" binding:"omitempty,dive,definition_status"`
	Limit  int                       `form:"limit,default=20" binding:"min=1,max=100"`
	Offset int                       `form:"offset,default=0" binding:"min=0"`
}

// ResumeRecurringJournalRequest controls how a paused definition resumes.
type ResumeRecurringJournalRequest struct {
	// Reanchor moves the next run date to the first scheduled date on or after today
	// instead of catching up the dates missed while paused.
	Reanchor bool `json:"reanchor"`
}

// SkipOccurrenceRequest records why the current due date is skipped.
type SkipOccurrenceRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// PreviewParams defines query parameters for previewing run dates.
type PreviewParams struct {
	Limit int    `form:"limit,default=12" binding:"min=1,max=366"`
	From  string `form:"from" binding:"omitempty,datetime=2006-01-02"`
}

// RunRecurringJournalRequest defines the body of a run invocation.
type RunRecurringJournalRequest struct {
	RunDate            *string          `json:"runDate" binding:"omitempty,datetime=2006-01-02"`
	RunID              string           `json:"runID" binding:"omitempty,uuid"`
	DryRun             bool             `json:"dryRun"`
	NotifyOnCompletion bool             `json:"notifyOnCompletion"`
	ExchangeRate       *decimal.Decimal `json:"exchangeRate"`
}

// RunDueRequest defines the body of a pass over all due definitions.
type RunDueRequest struct {
	AsOf *string `json:"asOf" binding:"omitempty,datetime=2006-01-02"`
}

// ListOccurrencesParams defines query parameters for listing occurrences.
type ListOccurrencesParams struct {
	Status    []domain.OccurrenceStatus `form:"status" binding:"omitempty,dive,occurrence_status"`
	Limit     int                       `form:"limit,default=20" binding:"min=1,max=100"`
	NextToken *string                   `form:"nextToken"`
}

// TemplateLineResponse mirrors domain.TemplateLine.
type TemplateLineResponse struct {
	LineNo       int               `json:"lineNo"`
	AccountID    string            `json:"accountID"`
	Debit        decimal.Decimal   `json:"debit"`
	Credit       decimal.Decimal   `json:"credit"`
	Description  string            `json:"description"`
	TaxCode      *string           `json:"taxCode,omitempty"`
	Department   *string           `json:"department,omitempty"`
	Project      *string           `json:"project,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// RecurringJournalResponse defines the data returned for a definition, including its dashboard fields.
type RecurringJournalResponse struct {
	DefinitionID        string                  `json:"definitionID"`
	WorkplaceID         string                  `json:"workplaceID"`
	Name                string                  `json:"name"`
	Description         string                  `json:"description"`
	Frequency           domain.Frequency        `json:"frequency"`
	Interval            int                     `json:"interval"`
	CustomSchedule      string                  `json:"customSchedule,omitempty"`
	StartDate           string                  `json:"startDate"`
	EndType             domain.EndType          `json:"endType"`
	EndAfterOccurrences *int                    `json:"endAfterOccurrences,omitempty"`
	EndDate             *string                 `json:"endDate,omitempty"`
	Status              domain.DefinitionStatus `json:"status"`
	LastRunDate         *string                 `json:"lastRunDate,omitempty"`
	NextRunDate         *string                 `json:"nextRunDate,omitempty"`
	TotalOccurrences    int                     `json:"totalOccurrences"`
	TemplateDescription string                  `json:"templateDescription"`
	CurrencyCode        string                  `json:"currencyCode"`
	Lines               []TemplateLineResponse  `json:"lines"`
	CreatedAt           time.Time               `json:"createdAt"`
	CreatedBy           string                  `json:"createdBy"`
	LastUpdatedAt       time.Time               `json:"lastUpdatedAt"`
	LastUpdatedBy       string                  `json:"lastUpdatedBy"`
}

// ListRecurringJournalsResponse wraps a page of definitions.
type ListRecurringJournalsResponse struct {
	Definitions []RecurringJournalResponse `json:"definitions"`
}

// PreviewDateResponse is one projected run date.
type PreviewDateResponse struct {
	Date      string `json:"date"`
	IsWeekend bool   `json:"isWeekend"`
	IsHoliday bool   `json:"isHoliday"`
}

// PreviewResponse lists projected run dates.
type PreviewResponse struct {
	DefinitionID string                `json:"definitionID"`
	Dates        []PreviewDateResponse `json:"dates"`
}

// OccurrenceResponse mirrors domain.Occurrence.
type OccurrenceResponse struct {
	OccurrenceID    string                  `json:"occurrenceID"`
	DefinitionID    string                  `json:"definitionID"`
	ScheduledDate   string                  `json:"scheduledDate"`
	RunDate         *time.Time              `json:"runDate,omitempty"`
	Status          domain.OccurrenceStatus `json:"status"`
	ErrorMessage    *string                 `json:"errorMessage,omitempty"`
	JournalEntryIDs []string                `json:"journalEntryIDs"`
	RunID           string                  `json:"runID"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// ListOccurrencesResponse wraps a page of occurrences.
type ListOccurrencesResponse struct {
	Occurrences []OccurrenceResponse `json:"occurrences"`
	NextToken   *string              `json:"nextToken,omitempty"`
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatDate(*t)
	return &s
}

// ToRecurringJournalResponse converts a domain definition to its response DTO.
func ToRecurringJournalResponse(d *domain.RecurringJournalDefinition) RecurringJournalResponse {
	lines := make([]TemplateLineResponse, len(d.Template.Lines))
	for i, l := range d.Template.Lines {
		lines[i] = TemplateLineResponse{
			LineNo:       l.LineNo,
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Description:  l.Description,
			TaxCode:      l.TaxCode,
			Department:   l.Department,
			Project:      l.Project,
			CustomFields: l.CustomFields,
		}
	}
	return RecurringJournalResponse{
		DefinitionID:        d.DefinitionID,
		WorkplaceID:         d.WorkplaceID,
		Name:                d.Name,
		Description:         d.Description,
		Frequency:           d.Frequency,
		Interval:            d.Interval,
		CustomSchedule:      d.CustomSchedule,
		StartDate:           domain.FormatDate(d.StartDate),
		EndType:             d.EndType,
		EndAfterOccurrences: d.EndAfterOccurrences,
		EndDate:             formatOptionalDate(d.EndDate),
		Status:              d.Status,
		LastRunDate:         formatOptionalDate(d.LastRunDate),
		NextRunDate:         formatOptionalDate(d.NextRunDate),
		TotalOccurrences:    d.TotalOccurrences,
		TemplateDescription: d.Template.Description,
		CurrencyCode:        d.Template.CurrencyCode,
		Lines:               lines,
		CreatedAt:           d.CreatedAt,
		CreatedBy:           d.CreatedBy,
		LastUpdatedAt:       d.LastUpdatedAt,
		LastUpdatedBy:       d.LastUpdatedBy,
	}
}

// ToRecurringJournalResponses converts a slice of definitions.
func ToRecurringJournalResponses(defs []domain.RecurringJournalDefinition) []RecurringJournalResponse {
	responses := make([]RecurringJournalResponse, len(defs))
	for i := range defs {
		responses[i] = ToRecurringJournalResponse(&defs[i])
	}
	return responses
}

// ToOccurrenceResponse converts a domain occurrence to its response DTO.
func ToOccurrenceResponse(o *domain.Occurrence) OccurrenceResponse {
	return OccurrenceResponse{
		OccurrenceID:    o.OccurrenceID,
		DefinitionID:    o.DefinitionID,
		ScheduledDate:   domain.FormatDate(o.ScheduledDate),
		RunDate:         o.RunDate,
		Status:          o.Status,
		ErrorMessage:    o.ErrorMessage,
		JournalEntryIDs: o.JournalEntryIDs,
		RunID:           o.RunID,
		CreatedAt:       o.CreatedAt,
	}
}

// ToOccurrenceResponses converts a slice of occurrences.
func ToOccurrenceResponses(occs []domain.Occurrence) []OccurrenceResponse {
	responses := make([]OccurrenceResponse, len(occs))
	for i := range occs {
		responses[i] = ToOccurrenceResponse(&occs[i])
	}
	return responses
}

// ToTemplate converts a template request into the domain template, numbering lines in order.
func (t TemplateRequest) ToTemplate() domain.EntryTemplate {
	lines := make([]domain.TemplateLine, len(t.Lines))
	for i, l := range t.Lines {
		lines[i] = domain.TemplateLine{
			LineNo:       i + 1,
			AccountID:    l.AccountID,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Description:  l.Description,
			TaxCode:      l.TaxCode,
			Department:   l.Department,
			Project:      l.Project,
			CustomFields: l.CustomFields,
		}
	}
	return domain.EntryTemplate{
		Description:  t.Description,
		CurrencyCode: t.CurrencyCode,
		Lines:        lines,
	}
}

// ToRunOptions converts the run request into executor options on behalf of requestedBy.
func (r RunRecurringJournalRequest) ToRunOptions(requestedBy string) (domain.RunOptions, error) {
	opts := domain.RunOptions{
		RunID:              r.RunID,
		DryRun:             r.DryRun,
		NotifyOnCompletion: r.NotifyOnCompletion,
		ExchangeRate:       r.ExchangeRate,
		RequestedBy:        requestedBy,
	}
	if r.RunDate != nil && *r.RunDate != "" {
		d, err := domain.ParseDate(*r.RunDate)
		if err != nil {
			return domain.RunOptions{}, err
		}
		opts.RunDate = &d
	}
	return opts, nil
}

// ToPreviewResponse converts projected run dates to their response DTO.
func ToPreviewResponse(definitionID string, items []schedule.PreviewItem) PreviewResponse {
	dates := make([]PreviewDateResponse, len(items))
	for i, item := range items {
		dates[i] = PreviewDateResponse{
			Date:      domain.FormatDate(item.Date),
			IsWeekend: item.IsWeekend,
			IsHoliday: item.IsHoliday,
		}
	}
	return PreviewResponse{DefinitionID: definitionID, Dates: dates}
}
