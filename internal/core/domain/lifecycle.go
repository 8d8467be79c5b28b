package domain

import (
	"fmt"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
)

// DefinitionStatus is the lifecycle state of a recurring journal definition.
type DefinitionStatus string

const (
	StatusActive    DefinitionStatus = "active"
	StatusPaused    DefinitionStatus = "paused"
	StatusCompleted DefinitionStatus = "completed"
	StatusCancelled DefinitionStatus = "cancelled"
)

// definitionTransitions lists the allowed target states per source state.
// Terminal states have no entry.
var definitionTransitions = map[DefinitionStatus][]DefinitionStatus{
	StatusActive: {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused: {StatusActive, StatusCancelled},
}

// IsValid reports whether s is a known status.
func (s DefinitionStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s DefinitionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from s to target.
func (s DefinitionStatus) CanTransitionTo(target DefinitionStatus) bool {
	for _, allowed := range definitionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (d *RecurringJournalDefinition) transition(target DefinitionStatus) error {
	if !d.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot move definition %s from %s to %s",
			apperrors.ErrInvalidTransition, d.DefinitionID, d.Status, target)
	}
	d.Status = target
	return nil
}

// Pause suspends an active definition.
func (d *RecurringJournalDefinition) Pause() error {
	return d.transition(StatusPaused)
}

// Resume reactivates a paused definition. The stored next run date is kept.
func (d *RecurringJournalDefinition) Resume() error {
	return d.transition(StatusActive)
}

// Cancel terminates an active or paused definition. The next run date is cleared
// because it has no meaning outside the active state.
func (d *RecurringJournalDefinition) Cancel() error {
	if err := d.transition(StatusCancelled); err != nil {
		return err
	}
	d.NextRunDate = nil
	return nil
}

// Complete marks an active definition whose end condition is satisfied.
func (d *RecurringJournalDefinition) Complete() error {
	if err := d.transition(StatusCompleted); err != nil {
		return err
	}
	d.NextRunDate = nil
	return nil
}

// EnsureMutable rejects changes to frequency, interval or template on terminal definitions.
func (d *RecurringJournalDefinition) EnsureMutable() error {
	if d.Status.IsTerminal() {
		return fmt.Errorf("%w: definition %s is %s", apperrors.ErrDefinitionLocked, d.DefinitionID, d.Status)
	}
	return nil
}
