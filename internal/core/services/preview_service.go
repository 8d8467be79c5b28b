package services

import (
	"context"
	"log/slog"
	"time"

	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
)

type previewService struct {
	BaseService
	definitions portsrepo.DefinitionReader
	previewer   *schedule.Previewer
}

// NewPreviewService creates the read-only projection service.
func NewPreviewService(definitions portsrepo.DefinitionReader, previewer *schedule.Previewer) portssvc.PreviewSvc {
	return &previewService{definitions: definitions, previewer: previewer}
}

var _ portssvc.PreviewSvc = (*previewService)(nil)

func (s *previewService) PreviewOccurrences(ctx context.Context, workplaceID, definitionID string, limit int, from *time.Time) ([]schedule.PreviewItem, error) {
	def, err := findOwnedDefinition(ctx, s.definitions, workplaceID, definitionID)
	if err != nil {
		return nil, err
	}
	items, err := s.previewer.Preview(ctx, *def, limit, from)
	if err != nil {
		s.LogError(ctx, err, "Failed to preview recurring journal", slog.String("definition_id", definitionID))
		return nil, err
	}
	return items, nil
}
