package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIEventName(t *testing.T) {
	const base = "/api/v1/workplaces/:workplace_id/recurring-journals"
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, base, "recurring_journal_created"},
		{http.MethodGet, base, "recurring_journals_listed"},
		{http.MethodGet, base + "/:definition_id", "recurring_journal_viewed"},
		{http.MethodPut, base + "/:definition_id", "recurring_journal_updated"},
		{http.MethodPost, base + "/:definition_id/run", "recurring_journal_run"},
		{http.MethodPost, base + "/:definition_id/pause", "recurring_journal_pause"},
		{http.MethodGet, base + "/:definition_id/occurrences", "recurring_journal_occurrences"},
		{http.MethodPost, "/api/v1/recurring-journals/run-due", "recurring_journal_run_due"},
		{http.MethodGet, "/health", ""},
		{http.MethodGet, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, apiEventName(tt.method, tt.path))
		})
	}
}
