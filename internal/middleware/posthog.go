package middleware

import (
	"net/http"
	"strings"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters/analytics"
	"github.com/gin-gonic/gin"
)

const recurringJournalsSegment = "recurring-journals"

// apiEventName names the analytics event for a matched route, or returns "" for routes that are not tracked.
//
//	POST .../recurring-journals                    -> recurring_journal_created
//	GET  .../recurring-journals/:definition_id     -> recurring_journal_viewed
//	POST .../recurring-journals/:definition_id/run -> recurring_journal_run
//	POST /api/v1/recurring-journals/run-due        -> recurring_journal_run_due
func apiEventName(method, fullPath string) string {
	_, tail, found := strings.Cut(fullPath, "/"+recurringJournalsSegment)
	if !found {
		return ""
	}
	var action string
	for _, segment := range strings.Split(tail, "/") {
		if segment != "" && !strings.HasPrefix(segment, ":") {
			action = segment
		}
	}
	if action != "" {
		return "recurring_journal_" + strings.ReplaceAll(action, "-", "_")
	}

	single := strings.Contains(tail, ":definition_id")
	switch {
	case method == http.MethodPost && !single:
		return "recurring_journal_created"
	case method == http.MethodGet && !single:
		return "recurring_journals_listed"
	case method == http.MethodGet:
		return "recurring_journal_viewed"
	case method == http.MethodPut:
		return "recurring_journal_updated"
	}
	return ""
}

// PosthogMiddleware records successful recurring journal API calls as PostHog events for the acting user.
func PosthogMiddleware(posthogClient *analytics.PosthogClientWrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if posthogClient == nil || !posthogClient.IsInitialized() {
			return
		}
		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		event := apiEventName(c.Request.Method, c.FullPath())
		if event == "" {
			return
		}
		userID, ok := GetUserIDFromContext(c)
		if !ok {
			return
		}

		props := map[string]any{
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"status_code": c.Writer.Status(),
		}
		for _, key := range []string{"workplace_id", "definition_id"} {
			if v := c.Param(key); v != "" {
				props[key] = v
			}
		}
		if err := posthogClient.Enqueue(userID, event, props); err != nil {
			GetLoggerFromCtx(c.Request.Context()).Warn("Failed to enqueue API event", "event", event, "error", err)
		}
	}
}
