// Package memory is an in-process arena for definitions and occurrences. It backs the CLI's
// local mode and tests; everything is addressed by ID and copied in and out.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/pagination"
)

// Store keeps definitions and the occurrence log in memory.
type Store struct {
	mu          sync.RWMutex
	definitions map[string]domain.RecurringJournalDefinition
	occurrences map[string]domain.Occurrence
	// insertion order of occurrence IDs per definition
	byDefinition map[string][]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		definitions:  make(map[string]domain.RecurringJournalDefinition),
		occurrences:  make(map[string]domain.Occurrence),
		byDefinition: make(map[string][]string),
	}
}

var (
	_ portsrepo.DefinitionRepositoryFacade = (*Store)(nil)
	_ portsrepo.OccurrenceRepositoryFacade = (*Store)(nil)
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyDefinition(d domain.RecurringJournalDefinition) domain.RecurringJournalDefinition {
	d.EndDate = copyTime(d.EndDate)
	d.LastRunDate = copyTime(d.LastRunDate)
	d.NextRunDate = copyTime(d.NextRunDate)
	if d.EndAfterOccurrences != nil {
		v := *d.EndAfterOccurrences
		d.EndAfterOccurrences = &v
	}
	d.Template.Lines = slices.Clone(d.Template.Lines)
	return d
}

func copyOccurrence(o domain.Occurrence) domain.Occurrence {
	o.RunDate = copyTime(o.RunDate)
	o.JournalEntryIDs = slices.Clone(o.JournalEntryIDs)
	if o.JournalEntryIDs == nil {
		o.JournalEntryIDs = []string{}
	}
	if o.ErrorMessage != nil {
		v := *o.ErrorMessage
		o.ErrorMessage = &v
	}
	return o
}

// SaveDefinition implements portsrepo.DefinitionWriter.
func (s *Store) SaveDefinition(_ context.Context, def domain.RecurringJournalDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[def.DefinitionID]; exists {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrDuplicate, def.DefinitionID)
	}
	s.definitions[def.DefinitionID] = copyDefinition(def)
	return nil
}

// UpdateDefinition implements portsrepo.DefinitionWriter.
func (s *Store) UpdateDefinition(_ context.Context, def domain.RecurringJournalDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[def.DefinitionID]; !exists {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, def.DefinitionID)
	}
	s.definitions[def.DefinitionID] = copyDefinition(def)
	return nil
}

// UpdateScheduleState implements portsrepo.DefinitionWriter.
func (s *Store) UpdateScheduleState(_ context.Context, definitionID string, state domain.ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyScheduleState(definitionID, state)
}

func (s *Store) applyScheduleState(definitionID string, state domain.ScheduleState) error {
	def, exists := s.definitions[definitionID]
	if !exists {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, definitionID)
	}
	def.Status = state.Status
	def.LastRunDate = copyTime(state.LastRunDate)
	def.NextRunDate = copyTime(state.NextRunDate)
	def.TotalOccurrences = state.TotalOccurrences
	def.LastUpdatedAt = state.UpdatedAt
	def.LastUpdatedBy = state.UpdatedBy
	s.definitions[definitionID] = def
	return nil
}

// FindDefinitionByID implements portsrepo.DefinitionReader.
func (s *Store) FindDefinitionByID(_ context.Context, definitionID string) (*domain.RecurringJournalDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, exists := s.definitions[definitionID]
	if !exists {
		return nil, fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, definitionID)
	}
	out := copyDefinition(def)
	return &out, nil
}

// ListDefinitions implements portsrepo.DefinitionReader.
func (s *Store) ListDefinitions(_ context.Context, filter domain.DefinitionFilter) ([]domain.RecurringJournalDefinition, error) {
	s.mu.RLock()
	matched := make([]domain.RecurringJournalDefinition, 0)
	for _, def := range s.definitions {
		if filter.WorkplaceID != "" && def.WorkplaceID != filter.WorkplaceID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, def.Status) {
			continue
		}
		matched = append(matched, copyDefinition(def))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].DefinitionID < matched[j].DefinitionID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return page(matched, filter.Offset, filter.Limit), nil
}

// ListDueDefinitions implements portsrepo.DefinitionReader.
func (s *Store) ListDueDefinitions(_ context.Context, asOf time.Time, after *domain.DueCursor, limit int) ([]domain.RecurringJournalDefinition, error) {
	asOf = domain.DateOf(asOf)
	s.mu.RLock()
	due := make([]domain.RecurringJournalDefinition, 0)
	for _, def := range s.definitions {
		if def.Status != domain.StatusActive || def.NextRunDate == nil || def.NextRunDate.After(asOf) {
			continue
		}
		if after != nil && !after.After(def) {
			continue
		}
		due = append(due, copyDefinition(def))
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRunDate.Equal(*due[j].NextRunDate) {
			return due[i].DefinitionID < due[j].DefinitionID
		}
		return due[i].NextRunDate.Before(*due[j].NextRunDate)
	})
	return page(due, 0, limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// CreateOccurrence implements portsrepo.OccurrenceWriter.
func (s *Store) CreateOccurrence(_ context.Context, occ domain.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.occurrences[occ.OccurrenceID]; exists {
		return fmt.Errorf("%w: occurrence %s", apperrors.ErrDuplicate, occ.OccurrenceID)
	}
	for _, id := range s.byDefinition[occ.DefinitionID] {
		existing := s.occurrences[id]
		if existing.ScheduledDate.Equal(occ.ScheduledDate) && !existing.Status.IsTerminal() {
			return fmt.Errorf("%w: occurrence for %s is already %s", apperrors.ErrDuplicate,
				domain.FormatDate(occ.ScheduledDate), existing.Status)
		}
	}
	s.occurrences[occ.OccurrenceID] = copyOccurrence(occ)
	s.byDefinition[occ.DefinitionID] = append(s.byDefinition[occ.DefinitionID], occ.OccurrenceID)
	return nil
}

// UpdateOccurrence implements portsrepo.OccurrenceWriter.
func (s *Store) UpdateOccurrence(_ context.Context, occ domain.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOccurrence(occ)
}

func (s *Store) updateOccurrence(occ domain.Occurrence) error {
	existing, exists := s.occurrences[occ.OccurrenceID]
	if !exists {
		return fmt.Errorf("%w: occurrence %s", apperrors.ErrNotFound, occ.OccurrenceID)
	}
	existing.Status = occ.Status
	existing.RunDate = copyTime(occ.RunDate)
	existing.ErrorMessage = occ.ErrorMessage
	existing.JournalEntryIDs = slices.Clone(occ.JournalEntryIDs)
	existing.LastTransitionAt = occ.LastTransitionAt
	s.occurrences[occ.OccurrenceID] = copyOccurrence(existing)
	return nil
}

// RecordOutcome implements portsrepo.OccurrenceWriter.
func (s *Store) RecordOutcome(_ context.Context, occ domain.Occurrence, state domain.ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[occ.DefinitionID]; !exists {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, occ.DefinitionID)
	}
	if err := s.updateOccurrence(occ); err != nil {
		return err
	}
	if s.definitions[occ.DefinitionID].Status != domain.StatusActive {
		return nil
	}
	return s.applyScheduleState(occ.DefinitionID, state)
}

// FindOpenOccurrence implements portsrepo.OccurrenceReader.
func (s *Store) FindOpenOccurrence(_ context.Context, definitionID string, scheduled time.Time) (*domain.Occurrence, error) {
	scheduled = domain.DateOf(scheduled)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.byDefinition[definitionID] {
		occ := s.occurrences[id]
		if occ.ScheduledDate.Equal(scheduled) && !occ.Status.IsTerminal() {
			out := copyOccurrence(occ)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: no open occurrence for %s", apperrors.ErrNotFound, domain.FormatDate(scheduled))
}

// FindOccurrenceByID implements portsrepo.OccurrenceReader.
func (s *Store) FindOccurrenceByID(_ context.Context, occurrenceID string) (*domain.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	occ, exists := s.occurrences[occurrenceID]
	if !exists {
		return nil, fmt.Errorf("%w: occurrence %s", apperrors.ErrNotFound, occurrenceID)
	}
	out := copyOccurrence(occ)
	return &out, nil
}

// FindOccurrenceByRunID implements portsrepo.OccurrenceReader. The latest match wins.
func (s *Store) FindOccurrenceByRunID(_ context.Context, definitionID, runID string) (*domain.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDefinition[definitionID]
	for i := len(ids) - 1; i >= 0; i-- {
		occ := s.occurrences[ids[i]]
		if occ.RunID == runID {
			out := copyOccurrence(occ)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: no occurrence for run %s", apperrors.ErrNotFound, runID)
}

// FindLastCompletedOccurrence implements portsrepo.OccurrenceReader.
func (s *Store) FindLastCompletedOccurrence(_ context.Context, definitionID string) (*domain.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *domain.Occurrence
	for _, id := range s.byDefinition[definitionID] {
		occ := s.occurrences[id]
		if occ.Status != domain.OccurrenceCompleted {
			continue
		}
		if last == nil || occ.ScheduledDate.After(last.ScheduledDate) {
			out := copyOccurrence(occ)
			last = &out
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no completed occurrence for %s", apperrors.ErrNotFound, definitionID)
	}
	return last, nil
}

// ListOccurrencesByDefinition implements portsrepo.OccurrenceReader.
func (s *Store) ListOccurrencesByDefinition(_ context.Context, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error) {
	var afterDate, afterCreated time.Time
	if filter.NextToken != nil && *filter.NextToken != "" {
		var err error
		afterDate, afterCreated, err = pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
	}

	s.mu.RLock()
	matched := make([]domain.Occurrence, 0)
	for _, id := range s.byDefinition[definitionID] {
		occ := s.occurrences[id]
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, occ.Status) {
			continue
		}
		matched = append(matched, copyOccurrence(occ))
	}
	s.mu.RUnlock()

	// newest scheduled date first, then newest created
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ScheduledDate.Equal(matched[j].ScheduledDate) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ScheduledDate.After(matched[j].ScheduledDate)
	})
	if !afterDate.IsZero() {
		start := len(matched)
		for i, occ := range matched {
			if occ.ScheduledDate.Before(afterDate) ||
				(occ.ScheduledDate.Equal(afterDate) && occ.CreatedAt.Before(afterCreated)) {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var next *string
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[limit-1]
		token := pagination.EncodeToken(last.ScheduledDate, last.CreatedAt)
		next = &token
	}
	return matched, next, nil
}

// CountOccurrencesByStatus implements portsrepo.OccurrenceReader.
func (s *Store) CountOccurrencesByStatus(_ context.Context, definitionID string) (map[domain.OccurrenceStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.OccurrenceStatus]int)
	for _, id := range s.byDefinition[definitionID] {
		counts[s.occurrences[id].Status]++
	}
	return counts, nil
}
