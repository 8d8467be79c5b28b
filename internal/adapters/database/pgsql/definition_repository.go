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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const definitionColumns = `definition_id, workplace_id, name, description, frequency, interval_count, custom_schedule,
	start_date, end_type, end_after_occurrences, end_date, status, last_run_date, next_run_date, total_occurrences,
	template_description, template_currency_code, created_at, created_by, last_updated_at, last_updated_by`

// PgxDefinitionRepository stores definitions in recurring_definitions and their template
// lines in recurring_template_lines.
type PgxDefinitionRepository struct {
	BaseRepository
}

func newPgxDefinitionRepository(pool *pgxpool.Pool) *PgxDefinitionRepository {
	return &PgxDefinitionRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.DefinitionRepositoryFacade = (*PgxDefinitionRepository)(nil)

func scanDefinition(row pgx.Row) (models.RecurringDefinition, error) {
	var m models.RecurringDefinition
	err := row.Scan(
		&m.DefinitionID,
		&m.WorkplaceID,
		&m.Name,
		&m.Description,
		&m.Frequency,
		&m.Interval,
		&m.CustomSchedule,
		&m.StartDate,
		&m.EndType,
		&m.EndAfterOccurrences,
		&m.EndDate,
		&m.Status,
		&m.LastRunDate,
		&m.NextRunDate,
		&m.TotalOccurrences,
		&m.TemplateDescription,
		&m.TemplateCurrency,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	return m, err
}

// SaveDefinition persists a new definition and its template lines in one transaction.
func (r *PgxDefinitionRepository) SaveDefinition(ctx context.Context, def domain.RecurringJournalDefinition) error {
	m, lines := mapping.ToModelRecurringDefinition(def)

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	query := `
		INSERT INTO recurring_definitions (` + definitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21);
	`
	_, err = tx.Exec(ctx, query,
		m.DefinitionID, m.WorkplaceID, m.Name, m.Description, m.Frequency, m.Interval, m.CustomSchedule,
		m.StartDate, m.EndType, m.EndAfterOccurrences, m.EndDate, m.Status, m.LastRunDate, m.NextRunDate,
		m.TotalOccurrences, m.TemplateDescription, m.TemplateCurrency,
		m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("%w: recurring journal %s", apperrors.ErrDuplicate, m.DefinitionID)
		}
		return apperrors.NewAppError(500, "failed to insert recurring journal "+m.DefinitionID, err)
	}

	if err := insertTemplateLines(ctx, tx, lines); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

func insertTemplateLines(ctx context.Context, tx pgx.Tx, lines []models.RecurringTemplateLine) error {
	if len(lines) == 0 {
		return nil
	}
	query := `
		INSERT INTO recurring_template_lines (
			definition_id, line_no, account_id, debit, credit, description, tax_code, department, project, custom_fields
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(query, l.DefinitionID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Description,
			l.TaxCode, l.Department, l.Project, l.CustomFields)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperrors.NewAppError(500, "failed to insert template lines", err)
	}
	return nil
}

// UpdateDefinition replaces the editable fields and the template lines.
func (r *PgxDefinitionRepository) UpdateDefinition(ctx context.Context, def domain.RecurringJournalDefinition) error {
	m, lines := mapping.ToModelRecurringDefinition(def)

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	query := `
		UPDATE recurring_definitions
		SET name = $2, description = $3, frequency = $4, interval_count = $5, custom_schedule = $6,
		    start_date = $7, end_type = $8, end_after_occurrences = $9, end_date = $10, status = $11,
		    last_run_date = $12, next_run_date = $13, total_occurrences = $14,
		    template_description = $15, template_currency_code = $16,
		    last_updated_at = $17, last_updated_by = $18
		WHERE definition_id = $1;
	`
	ct, err := tx.Exec(ctx, query,
		m.DefinitionID, m.Name, m.Description, m.Frequency, m.Interval, m.CustomSchedule,
		m.StartDate, m.EndType, m.EndAfterOccurrences, m.EndDate, m.Status,
		m.LastRunDate, m.NextRunDate, m.TotalOccurrences,
		m.TemplateDescription, m.TemplateCurrency,
		m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update recurring journal "+m.DefinitionID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, m.DefinitionID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM recurring_template_lines WHERE definition_id = $1;`, m.DefinitionID); err != nil {
		return apperrors.NewAppError(500, "failed to replace template lines of "+m.DefinitionID, err)
	}
	if err := insertTemplateLines(ctx, tx, lines); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

// UpdateScheduleState writes only the run-mutable columns.
func (r *PgxDefinitionRepository) UpdateScheduleState(ctx context.Context, definitionID string, state domain.ScheduleState) error {
	return updateScheduleState(ctx, r.Pool, definitionID, state)
}

func updateScheduleState(ctx context.Context, db execer, definitionID string, state domain.ScheduleState) error {
	query := `
		UPDATE recurring_definitions
		SET status = $2, last_run_date = $3, next_run_date = $4, total_occurrences = $5,
		    last_updated_at = $6, last_updated_by = $7
		WHERE definition_id = $1;
	`
	ct, err := db.Exec(ctx, query, definitionID, string(state.Status), state.LastRunDate, state.NextRunDate,
		state.TotalOccurrences, state.UpdatedAt, state.UpdatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update schedule state of "+definitionID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, definitionID)
	}
	return nil
}

// FindDefinitionByID retrieves a definition together with its template lines.
func (r *PgxDefinitionRepository) FindDefinitionByID(ctx context.Context, definitionID string) (*domain.RecurringJournalDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions WHERE definition_id = $1;`
	m, err := scanDefinition(r.Pool.QueryRow(ctx, query, definitionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, definitionID)
		}
		return nil, apperrors.NewAppError(500, "failed to find recurring journal "+definitionID, err)
	}

	linesByDef, err := r.findTemplateLines(ctx, []string{definitionID})
	if err != nil {
		return nil, err
	}
	def := mapping.ToDomainRecurringDefinition(m, linesByDef[definitionID])
	return &def, nil
}

// ListDefinitions retrieves definitions matching the filter, oldest first.
func (r *PgxDefinitionRepository) ListDefinitions(ctx context.Context, filter domain.DefinitionFilter) ([]domain.RecurringJournalDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM recurring_definitions WHERE 1=1`
	args := []any{}
	if filter.WorkplaceID != "" {
		args = append(args, filter.WorkplaceID)
		query += " AND workplace_id = $" + strconv.Itoa(len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += " AND status = ANY($" + strconv.Itoa(len(args)) + ")"
	}
	query += " ORDER BY created_at, definition_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	return r.queryDefinitions(ctx, query+";", args...)
}

// ListDueDefinitions retrieves active definitions due on or before asOf, oldest due first,
// continuing after the cursor when one is given.
func (r *PgxDefinitionRepository) ListDueDefinitions(ctx context.Context, asOf time.Time, after *domain.DueCursor, limit int) ([]domain.RecurringJournalDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM recurring_definitions
		WHERE status = 'active' AND next_run_date IS NOT NULL AND next_run_date <= $1`
	args := []any{domain.DateOf(asOf)}
	if after != nil {
		args = append(args, domain.DateOf(after.NextRunDate), after.DefinitionID)
		query += ` AND (next_run_date, definition_id) > ($2, $3)`
	}
	query += ` ORDER BY next_run_date, definition_id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.queryDefinitions(ctx, query+";", args...)
}

func (r *PgxDefinitionRepository) queryDefinitions(ctx context.Context, query string, args ...any) ([]domain.RecurringJournalDefinition, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query recurring journals", err)
	}
	defer rows.Close()

	var headers []models.RecurringDefinition
	for rows.Next() {
		m, err := scanDefinition(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan recurring journal row", err)
		}
		headers = append(headers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating recurring journal rows", err)
	}

	ids := make([]string, len(headers))
	for i, h := range headers {
		ids[i] = h.DefinitionID
	}
	linesByDef, err := r.findTemplateLines(ctx, ids)
	if err != nil {
		return nil, err
	}

	defs := make([]domain.RecurringJournalDefinition, len(headers))
	for i, h := range headers {
		defs[i] = mapping.ToDomainRecurringDefinition(h, linesByDef[h.DefinitionID])
	}
	return defs, nil
}

func (r *PgxDefinitionRepository) findTemplateLines(ctx context.Context, definitionIDs []string) (map[string][]models.RecurringTemplateLine, error) {
	linesByDef := make(map[string][]models.RecurringTemplateLine, len(definitionIDs))
	if len(definitionIDs) == 0 {
		return linesByDef, nil
	}

	query := `
		SELECT definition_id, line_no, account_id, debit, credit, description, tax_code, department, project, custom_fields
		FROM recurring_template_lines
		WHERE definition_id = ANY($1)
		ORDER BY definition_id, line_no;
	`
	rows, err := r.Pool.Query(ctx, query, definitionIDs)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query template lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.RecurringTemplateLine
		err := rows.Scan(&l.DefinitionID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.Description,
			&l.TaxCode, &l.Department, &l.Project, &l.CustomFields)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan template line", err)
		}
		linesByDef[l.DefinitionID] = append(linesByDef[l.DefinitionID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating template lines", err)
	}
	return linesByDef, nil
}
