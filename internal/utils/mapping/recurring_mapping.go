package mapping

import (
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/models"
)

// ToModelRecurringDefinition converts a domain definition to its row and template line rows.
func ToModelRecurringDefinition(d domain.RecurringJournalDefinition) (models.RecurringDefinition, []models.RecurringTemplateLine) {
	m := models.RecurringDefinition{
		DefinitionID:        d.DefinitionID,
		WorkplaceID:         d.WorkplaceID,
		Name:                d.Name,
		Description:         d.Description,
		Frequency:           string(d.Frequency),
		Interval:            d.Interval,
		StartDate:           domain.DateOf(d.StartDate),
		EndType:             string(d.EndType),
		EndAfterOccurrences: d.EndAfterOccurrences,
		EndDate:             d.EndDate,
		Status:              string(d.Status),
		LastRunDate:         d.LastRunDate,
		NextRunDate:         d.NextRunDate,
		TotalOccurrences:    d.TotalOccurrences,
		TemplateDescription: d.Template.Description,
		TemplateCurrency:    d.Template.CurrencyCode,
		AuditFields:         ToModelAuditFields(d.AuditFields),
	}
	if d.CustomSchedule != "" {
		schedule := d.CustomSchedule
		m.CustomSchedule = &schedule
	}

	lines := make([]models.RecurringTemplateLine, len(d.Template.Lines))
	for i, l := range d.Template.Lines {
		lineNo := l.LineNo
		if lineNo == 0 {
			lineNo = i + 1
		}
		lines[i] = models.RecurringTemplateLine{
			DefinitionID: d.DefinitionID,
			LineNo:       lineNo,
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
	return m, lines
}

// ToDomainRecurringDefinition converts a definition row and its ordered line rows to a domain definition.
func ToDomainRecurringDefinition(m models.RecurringDefinition, lines []models.RecurringTemplateLine) domain.RecurringJournalDefinition {
	d := domain.RecurringJournalDefinition{
		DefinitionID:        m.DefinitionID,
		WorkplaceID:         m.WorkplaceID,
		Name:                m.Name,
		Description:         m.Description,
		Frequency:           domain.Frequency(m.Frequency),
		Interval:            m.Interval,
		StartDate:           domain.DateOf(m.StartDate),
		EndType:             domain.EndType(m.EndType),
		EndAfterOccurrences: m.EndAfterOccurrences,
		EndDate:             dateOfPtr(m.EndDate),
		Status:              domain.DefinitionStatus(m.Status),
		LastRunDate:         dateOfPtr(m.LastRunDate),
		NextRunDate:         dateOfPtr(m.NextRunDate),
		TotalOccurrences:    m.TotalOccurrences,
		Template: domain.EntryTemplate{
			Description:  m.TemplateDescription,
			CurrencyCode: m.TemplateCurrency,
			Lines:        make([]domain.TemplateLine, len(lines)),
		},
		AuditFields: ToDomainAuditFields(m.AuditFields),
	}
	if m.CustomSchedule != nil {
		d.CustomSchedule = *m.CustomSchedule
	}
	for i, l := range lines {
		d.Template.Lines[i] = domain.TemplateLine{
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
	return d
}

// ToModelOccurrence converts a domain Occurrence to a model RecurringOccurrence
func ToModelOccurrence(d domain.Occurrence) models.RecurringOccurrence {
	ids := d.JournalEntryIDs
	if ids == nil {
		ids = []string{}
	}
	return models.RecurringOccurrence{
		OccurrenceID:     d.OccurrenceID,
		DefinitionID:     d.DefinitionID,
		ScheduledDate:    domain.DateOf(d.ScheduledDate),
		RunDate:          d.RunDate,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		JournalEntryIDs:  ids,
		RunID:            d.RunID,
		CreatedAt:        d.CreatedAt,
		CreatedBy:        d.CreatedBy,
		LastTransitionAt: d.LastTransitionAt,
	}
}

// ToDomainOccurrence converts a model RecurringOccurrence to a domain Occurrence
func ToDomainOccurrence(m models.RecurringOccurrence) domain.Occurrence {
	ids := m.JournalEntryIDs
	if ids == nil {
		ids = []string{}
	}
	return domain.Occurrence{
		OccurrenceID:     m.OccurrenceID,
		DefinitionID:     m.DefinitionID,
		ScheduledDate:    domain.DateOf(m.ScheduledDate),
		RunDate:          m.RunDate,
		Status:           domain.OccurrenceStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		JournalEntryIDs:  ids,
		RunID:            m.RunID,
		CreatedAt:        m.CreatedAt,
		CreatedBy:        m.CreatedBy,
		LastTransitionAt: m.LastTransitionAt,
	}
}

// ToDomainOccurrenceSlice converts a slice of model occurrences to domain occurrences
func ToDomainOccurrenceSlice(ms []models.RecurringOccurrence) []domain.Occurrence {
	ds := make([]domain.Occurrence, len(ms))
	for i, m := range ms {
		ds[i] = ToDomainOccurrence(m)
	}
	return ds
}

func dateOfPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}
