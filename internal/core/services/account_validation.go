package services

import (
	"context"
	"fmt"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
)

// validateTemplateAccounts checks that every account a template references exists, is active
// and belongs to the workplace. It returns the account types keyed by ID.
func validateTemplateAccounts(ctx context.Context, lookup gateways.AccountLookup, workplaceID string, tmpl domain.EntryTemplate) (map[string]domain.AccountType, error) {
	ids := tmpl.AccountIDs()
	types := make(map[string]domain.AccountType, len(ids))
	if lookup == nil {
		return types, nil
	}
	accounts, err := lookup.FindAccountsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	for _, id := range ids {
		acc, found := accounts[id]
		if !found {
			return nil, fmt.Errorf("%w: account %s does not exist", apperrors.ErrValidation, id)
		}
		if acc.WorkplaceID != workplaceID {
			return nil, fmt.Errorf("%w: account %s does not belong to workplace %s", apperrors.ErrValidation, id, workplaceID)
		}
		if !acc.IsActive {
			return nil, fmt.Errorf("%w: account %s is inactive", apperrors.ErrValidation, id)
		}
		types[id] = acc.AccountType
	}
	return types, nil
}
