package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	"github.com/SscSPs/recurring_journal_engine/internal/models"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/mapping"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	occurrenceColumns = `occurrence_id, definition_id, scheduled_date, run_date, status, error_message,
	journal_entry_ids, run_id, created_at, created_by, last_transition_at`

	// partial unique index over pending and processing rows
	occurrenceInFlightConstraint = "recurring_occurrences_in_flight_key"
)

// PgxOccurrenceRepository keeps the append-only occurrence log in recurring_occurrences.
type PgxOccurrenceRepository struct {
	BaseRepository
}

func newPgxOccurrenceRepository(pool *pgxpool.Pool) *PgxOccurrenceRepository {
	return &PgxOccurrenceRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.OccurrenceRepositoryFacade = (*PgxOccurrenceRepository)(nil)

func scanOccurrence(row pgx.Row) (models.RecurringOccurrence, error) {
	var m models.RecurringOccurrence
	err := row.Scan(
		&m.OccurrenceID,
		&m.DefinitionID,
		&m.ScheduledDate,
		&m.RunDate,
		&m.Status,
		&m.ErrorMessage,
		&m.JournalEntryIDs,
		&m.RunID,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastTransitionAt,
	)
	return m, err
}

// CreateOccurrence appends an occurrence. The in-flight index rejects a second pending or
// processing row for the same date.
func (r *PgxOccurrenceRepository) CreateOccurrence(ctx context.Context, occ domain.Occurrence) error {
	m := mapping.ToModelOccurrence(occ)
	query := `
		INSERT INTO recurring_occurrences (` + occurrenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.OccurrenceID, m.DefinitionID, m.ScheduledDate, m.RunDate, m.Status, m.ErrorMessage,
		m.JournalEntryIDs, m.RunID, m.CreatedAt, m.CreatedBy, m.LastTransitionAt,
	)
	if err != nil {
		if isUniqueViolation(err, occurrenceInFlightConstraint) {
			return fmt.Errorf("%w: occurrence for %s is already in progress", apperrors.ErrDuplicate,
				domain.FormatDate(m.ScheduledDate))
		}
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: occurrence %s", apperrors.ErrDuplicate, m.OccurrenceID)
		}
		return apperrors.NewAppError(500, "failed to insert occurrence "+m.OccurrenceID, err)
	}
	return nil
}

// UpdateOccurrence writes the mutable columns of an occurrence.
func (r *PgxOccurrenceRepository) UpdateOccurrence(ctx context.Context, occ domain.Occurrence) error {
	return updateOccurrence(ctx, r.Pool, occ)
}

func updateOccurrence(ctx context.Context, db execer, occ domain.Occurrence) error {
	m := mapping.ToModelOccurrence(occ)
	query := `
		UPDATE recurring_occurrences
		SET status = $2, run_date = $3, error_message = $4, journal_entry_ids = $5, last_transition_at = $6
		WHERE occurrence_id = $1;
	`
	ct, err := db.Exec(ctx, query, m.OccurrenceID, m.Status, m.RunDate, m.ErrorMessage, m.JournalEntryIDs, m.LastTransitionAt)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update occurrence "+m.OccurrenceID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: occurrence %s", apperrors.ErrNotFound, m.OccurrenceID)
	}
	return nil
}

// RecordOutcome updates the occurrence and its definition's schedule state in one transaction.
func (r *PgxOccurrenceRepository) RecordOutcome(ctx context.Context, occ domain.Occurrence, state domain.ScheduleState) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if err := updateOccurrence(ctx, tx, occ); err != nil {
		return err
	}
	query := `
		UPDATE recurring_definitions
		SET status = $2, last_run_date = $3, next_run_date = $4, total_occurrences = $5,
		    last_updated_at = $6, last_updated_by = $7
		WHERE definition_id = $1 AND status = 'active';
	`
	if _, err := tx.Exec(ctx, query, occ.DefinitionID, string(state.Status), state.LastRunDate, state.NextRunDate,
		state.TotalOccurrences, state.UpdatedAt, state.UpdatedBy); err != nil {
		return apperrors.NewAppError(500, "failed to update schedule state of "+occ.DefinitionID, err)
	}
	return r.Commit(ctx, tx)
}

// FindOpenOccurrence retrieves the pending or processing occurrence of a scheduled date.
func (r *PgxOccurrenceRepository) FindOpenOccurrence(ctx context.Context, definitionID string, scheduled time.Time) (*domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + `
		FROM recurring_occurrences
		WHERE definition_id = $1 AND scheduled_date = $2 AND status IN ('pending', 'processing')
		LIMIT 1;`
	return r.findOne(ctx, "open occurrence for "+domain.FormatDate(scheduled), query, definitionID, domain.DateOf(scheduled))
}

func (r *PgxOccurrenceRepository) findOne(ctx context.Context, notFound string, query string, args ...any) (*domain.Occurrence, error) {
	m, err := scanOccurrence(r.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, notFound)
		}
		return nil, apperrors.NewAppError(500, "failed to find occurrence", err)
	}
	occ := mapping.ToDomainOccurrence(m)
	return &occ, nil
}

// FindOccurrenceByID retrieves an occurrence by its ID.
func (r *PgxOccurrenceRepository) FindOccurrenceByID(ctx context.Context, occurrenceID string) (*domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM recurring_occurrences WHERE occurrence_id = $1;`
	return r.findOne(ctx, "occurrence "+occurrenceID, query, occurrenceID)
}

// FindOccurrenceByRunID retrieves the latest occurrence a run created for a definition.
func (r *PgxOccurrenceRepository) FindOccurrenceByRunID(ctx context.Context, definitionID, runID string) (*domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + `
		FROM recurring_occurrences
		WHERE definition_id = $1 AND run_id = $2
		ORDER BY created_at DESC
		LIMIT 1;`
	return r.findOne(ctx, "no occurrence for run "+runID, query, definitionID, runID)
}

// FindLastCompletedOccurrence retrieves the completed occurrence with the latest scheduled date.
func (r *PgxOccurrenceRepository) FindLastCompletedOccurrence(ctx context.Context, definitionID string) (*domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + `
		FROM recurring_occurrences
		WHERE definition_id = $1 AND status = 'completed'
		ORDER BY scheduled_date DESC, created_at DESC
		LIMIT 1;`
	return r.findOne(ctx, "no completed occurrence for "+definitionID, query, definitionID)
}

// ListOccurrencesByDefinition retrieves a page of occurrences using keyset pagination over
// (scheduled_date DESC, created_at DESC).
func (r *PgxOccurrenceRepository) ListOccurrencesByDefinition(ctx context.Context, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	// one extra row tells us whether there is a next page
	fetchLimit := limit + 1

	query := `SELECT ` + occurrenceColumns + ` FROM recurring_occurrences WHERE definition_id = $1`
	args := []any{definitionID}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += " AND status = ANY($" + strconv.Itoa(len(args)) + ")"
	}
	if filter.NextToken != nil && *filter.NextToken != "" {
		lastDate, lastCreatedAt, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid nextToken: %v", apperrors.ErrValidation, err)
		}
		args = append(args, lastDate, lastCreatedAt)
		query += " AND (scheduled_date, created_at) < ($" + strconv.Itoa(len(args)-1) + ", $" + strconv.Itoa(len(args)) + ")"
	}
	args = append(args, fetchLimit)
	query += " ORDER BY scheduled_date DESC, created_at DESC LIMIT $" + strconv.Itoa(len(args)) + ";"

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query occurrences of "+definitionID, err)
	}
	defer rows.Close()

	results := make([]models.RecurringOccurrence, 0, fetchLimit)
	for rows.Next() {
		m, err := scanOccurrence(rows)
		if err != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan occurrence row for "+definitionID, err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating occurrence rows for "+definitionID, err)
	}

	var nextToken *string
	if len(results) > limit {
		results = results[:limit]
		last := results[limit-1]
		token := pagination.EncodeToken(last.ScheduledDate, last.CreatedAt)
		nextToken = &token
	}
	return mapping.ToDomainOccurrenceSlice(results), nextToken, nil
}

// CountOccurrencesByStatus aggregates the occurrence log of a definition.
func (r *PgxOccurrenceRepository) CountOccurrencesByStatus(ctx context.Context, definitionID string) (map[domain.OccurrenceStatus]int, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT status, COUNT(*) FROM recurring_occurrences WHERE definition_id = $1 GROUP BY status;`, definitionID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to count occurrences of "+definitionID, err)
	}
	defer rows.Close()

	counts := make(map[domain.OccurrenceStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan occurrence count", err)
		}
		counts[domain.OccurrenceStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating occurrence counts", err)
	}
	return counts, nil
}
