package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
	"github.com/SscSPs/recurring_journal_engine/internal/handlers"
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock DefinitionService ---
type MockDefinitionService struct {
	mock.Mock
}

func (m *MockDefinitionService) GetDefinition(ctx context.Context, workplaceID, definitionID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) ListDefinitions(ctx context.Context, workplaceID string, params dto.ListRecurringJournalsParams) ([]domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) CreateDefinition(ctx context.Context, workplaceID string, req dto.CreateRecurringJournalRequest, creatorUserID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, req, creatorUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) UpdateDefinition(ctx context.Context, workplaceID, definitionID string, req dto.UpdateRecurringJournalRequest, userID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, definitionID, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) PauseDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, definitionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) ResumeDefinition(ctx context.Context, workplaceID, definitionID string, opts portssvc.ResumeOptions, userID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, definitionID, opts, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}
func (m *MockDefinitionService) CancelDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error) {
	args := m.Called(ctx, workplaceID, definitionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecurringJournalDefinition), args.Error(1)
}

var _ portssvc.DefinitionSvcFacade = (*MockDefinitionService)(nil)

// --- Mock PreviewService ---
type MockPreviewService struct {
	mock.Mock
}

func (m *MockPreviewService) PreviewOccurrences(ctx context.Context, workplaceID, definitionID string, limit int, from *time.Time) ([]schedule.PreviewItem, error) {
	args := m.Called(ctx, workplaceID, definitionID, limit, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schedule.PreviewItem), args.Error(1)
}

var _ portssvc.PreviewSvc = (*MockPreviewService)(nil)

// --- Mock OccurrenceService ---
type MockOccurrenceService struct {
	mock.Mock
}

func (m *MockOccurrenceService) ListOccurrences(ctx context.Context, workplaceID, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error) {
	args := m.Called(ctx, workplaceID, definitionID, filter)
	var next *string
	if args.Get(1) != nil {
		next = args.Get(1).(*string)
	}
	if args.Get(0) == nil {
		return nil, next, args.Error(2)
	}
	return args.Get(0).([]domain.Occurrence), next, args.Error(2)
}
func (m *MockOccurrenceService) GetStatistics(ctx context.Context, workplaceID, definitionID string) (*domain.OccurrenceStats, error) {
	args := m.Called(ctx, workplaceID, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OccurrenceStats), args.Error(1)
}

var _ portssvc.OccurrenceSvc = (*MockOccurrenceService)(nil)

// --- Mock RunService ---
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Run(ctx context.Context, definitionID string, opts domain.RunOptions) (*domain.RunResult, error) {
	args := m.Called(ctx, definitionID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunResult), args.Error(1)
}
func (m *MockRunService) RunDue(ctx context.Context, asOf time.Time) (*domain.BatchRunResult, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchRunResult), args.Error(1)
}
func (m *MockRunService) SkipOccurrence(ctx context.Context, definitionID, reason, userID string) (*domain.Occurrence, error) {
	args := m.Called(ctx, definitionID, reason, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Occurrence), args.Error(1)
}

var _ portssvc.RunSvc = (*MockRunService)(nil)

// --- Test Suite Setup ---

type RecurringJournalHandlerTestSuite struct {
	suite.Suite
	router      *gin.Engine
	definitions *MockDefinitionService
	previews    *MockPreviewService
	occurrences *MockOccurrenceService
	runs        *MockRunService
	testUserID  string
	jwtSecret   string
	token       string
}

func (suite *RecurringJournalHandlerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(handlers.RegisterValidators())
	suite.jwtSecret = "test-secret-for-recurring-journals"
	suite.testUserID = "user-1"

	claims := jwt.RegisteredClaims{
		Subject:   suite.testUserID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(suite.jwtSecret))
	suite.Require().NoError(err)
	suite.token = token
}

func (suite *RecurringJournalHandlerTestSuite) SetupTest() {
	suite.definitions = new(MockDefinitionService)
	suite.previews = new(MockPreviewService)
	suite.occurrences = new(MockOccurrenceService)
	suite.runs = new(MockRunService)

	services := &portssvc.ServiceContainer{
		Definition: suite.definitions,
		Preview:    suite.previews,
		Occurrence: suite.occurrences,
		Run:        suite.runs,
	}

	suite.router = gin.New()
	v1 := suite.router.Group("/api/v1", middleware.AuthMiddleware(suite.jwtSecret))
	workplaces := v1.Group("/workplaces/:workplace_id", middleware.RequireWorkplaceAccess())
	handlers.RegisterRecurringJournalRoutes(workplaces, v1, services)
}

func (suite *RecurringJournalHandlerTestSuite) TearDownTest() {
	suite.definitions.AssertExpectations(suite.T())
	suite.previews.AssertExpectations(suite.T())
	suite.occurrences.AssertExpectations(suite.T())
	suite.runs.AssertExpectations(suite.T())
}

func TestRecurringJournalHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(RecurringJournalHandlerTestSuite))
}

func (suite *RecurringJournalHandlerTestSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		suite.Require().NoError(err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+suite.token)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func sampleDefinition(definitionID, workplaceID string) *domain.RecurringJournalDefinition {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	return &domain.RecurringJournalDefinition{
		DefinitionID: definitionID,
		WorkplaceID:  workplaceID,
		Name:         "Monthly rent",
		Frequency:    domain.Monthly,
		Interval:     1,
		StartDate:    start,
		EndType:      domain.EndNever,
		Status:       domain.StatusActive,
		NextRunDate:  &start,
		Template: domain.EntryTemplate{
			Description:  "Office rent",
			CurrencyCode: "USD",
			Lines: []domain.TemplateLine{
				{LineNo: 1, AccountID: "acc-rent", Debit: decimal.NewFromInt(100), Credit: decimal.Zero},
				{LineNo: 2, AccountID: "acc-cash", Debit: decimal.Zero, Credit: decimal.NewFromInt(100)},
			},
		},
	}
}

func createBody(frequency string) map[string]any {
	return map[string]any{
		"name":      "Monthly rent",
		"frequency": frequency,
		"interval":  1,
		"startDate": "2024-01-31",
		"endType":   "never",
		"template": map[string]any{
			"description":  "Office rent",
			"currencyCode": "USD",
			"lines": []map[string]any{
				{"accountID": "acc-rent", "debit": "100", "credit": "0"},
				{"accountID": "acc-cash", "debit": "0", "credit": "100"},
			},
		},
	}
}

// --- Test Cases ---

func (suite *RecurringJournalHandlerTestSuite) TestCreateRecurringJournal_Success() {
	suite.definitions.On("CreateDefinition", mock.Anything, "wp-1",
		mock.MatchedBy(func(req dto.CreateRecurringJournalRequest) bool {
			return req.Name == "Monthly rent" && req.Frequency == domain.Monthly && len(req.Template.Lines) == 2
		}), suite.testUserID).
		Return(sampleDefinition("def-1", "wp-1"), nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals", createBody("monthly"))

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.RecurringJournalResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("def-1", resp.DefinitionID)
	suite.Equal("2024-01-31", resp.StartDate)
	suite.Require().NotNil(resp.NextRunDate)
	suite.Equal("2024-01-31", *resp.NextRunDate)
	suite.Len(resp.Lines, 2)
}

func (suite *RecurringJournalHandlerTestSuite) TestCreateRecurringJournal_UnknownFrequency() {
	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals", createBody("hourly"))

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "Invalid request format")
	suite.definitions.AssertNotCalled(suite.T(), "CreateDefinition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *RecurringJournalHandlerTestSuite) TestCreateRecurringJournal_UnbalancedTemplate() {
	suite.definitions.On("CreateDefinition", mock.Anything, "wp-1", mock.Anything, suite.testUserID).
		Return(nil, &apperrors.UnbalancedError{Debits: "100", Credits: "90"}).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals", createBody("monthly"))

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestGetRecurringJournal_NotFound() {
	suite.definitions.On("GetDefinition", mock.Anything, "wp-1", "missing").
		Return(nil, fmt.Errorf("%w: definition missing", apperrors.ErrNotFound)).Once()

	w := suite.request(http.MethodGet, "/api/v1/workplaces/wp-1/recurring-journals/missing", nil)

	suite.Equal(http.StatusNotFound, w.Code)
	suite.Contains(w.Body.String(), "Recurring journal not found")
}

func (suite *RecurringJournalHandlerTestSuite) TestUpdateRecurringJournal_LockedDefinition() {
	suite.definitions.On("UpdateDefinition", mock.Anything, "wp-1", "def-1", mock.Anything, suite.testUserID).
		Return(nil, apperrors.ErrDefinitionLocked).Once()

	w := suite.request(http.MethodPut, "/api/v1/workplaces/wp-1/recurring-journals/def-1", map[string]any{"interval": 2})

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestResumeRecurringJournal_Reanchor() {
	resumed := sampleDefinition("def-1", "wp-1")
	suite.definitions.On("ResumeDefinition", mock.Anything, "wp-1", "def-1", portssvc.ResumeOptions{Reanchor: true}, suite.testUserID).
		Return(resumed, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals/def-1/resume", map[string]any{"reanchor": true})

	suite.Equal(http.StatusOK, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunRecurringJournal_DryRun() {
	suite.definitions.On("GetDefinition", mock.Anything, "wp-1", "def-1").
		Return(sampleDefinition("def-1", "wp-1"), nil).Once()
	runDate := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	suite.runs.On("Run", mock.Anything, "def-1", mock.MatchedBy(func(opts domain.RunOptions) bool {
		return opts.DryRun && opts.RequestedBy == suite.testUserID && opts.RunDate != nil && opts.RunDate.Equal(runDate)
	})).Return(&domain.RunResult{
		Success:               true,
		DryRun:                true,
		Message:               "dry run for 2024-01-31",
		DefinitionID:          "def-1",
		CreatedJournalEntries: []string{},
		Errors:                []string{},
	}, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals/def-1/run",
		map[string]any{"dryRun": true, "runDate": "2024-01-31"})

	suite.Equal(http.StatusOK, w.Code)
	var result domain.RunResult
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	suite.True(result.Success)
	suite.True(result.DryRun)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunRecurringJournal_ReplaysRunID() {
	runID := uuid.NewString()
	suite.definitions.On("GetDefinition", mock.Anything, "wp-1", "def-1").
		Return(sampleDefinition("def-1", "wp-1"), nil).Once()
	suite.runs.On("Run", mock.Anything, "def-1", mock.MatchedBy(func(opts domain.RunOptions) bool {
		return opts.RunID == runID && !opts.DryRun
	})).Return(&domain.RunResult{Success: true, RunID: runID, DefinitionID: "def-1"}, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals/def-1/run", map[string]any{"runID": runID})

	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), runID)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunRecurringJournal_RunInProgress() {
	suite.definitions.On("GetDefinition", mock.Anything, "wp-1", "def-1").
		Return(sampleDefinition("def-1", "wp-1"), nil).Once()
	suite.runs.On("Run", mock.Anything, "def-1", mock.Anything).
		Return(nil, fmt.Errorf("%w: definition def-1", apperrors.ErrRunInProgress)).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals/def-1/run", nil)

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunRecurringJournal_OtherWorkplace() {
	suite.definitions.On("GetDefinition", mock.Anything, "wp-2", "def-1").
		Return(nil, apperrors.ErrNotFound).Once()

	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-2/recurring-journals/def-1/run", nil)

	suite.Equal(http.StatusNotFound, w.Code)
	suite.runs.AssertNotCalled(suite.T(), "Run", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunRecurringJournal_InvalidRunID() {
	w := suite.request(http.MethodPost, "/api/v1/workplaces/wp-1/recurring-journals/def-1/run", map[string]any{"runID": "not-a-uuid"})

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestPreviewRecurringJournal() {
	items := []schedule.PreviewItem{
		{Date: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), IsWeekend: true},
	}
	suite.previews.On("PreviewOccurrences", mock.Anything, "wp-1", "def-1", 3, (*time.Time)(nil)).
		Return(items, nil).Once()

	w := suite.request(http.MethodGet, "/api/v1/workplaces/wp-1/recurring-journals/def-1/preview?limit=3", nil)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.PreviewResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("def-1", resp.DefinitionID)
	suite.Require().Len(resp.Dates, 3)
	suite.Equal("2024-02-29", resp.Dates[1].Date)
	suite.True(resp.Dates[2].IsWeekend)
}

func (suite *RecurringJournalHandlerTestSuite) TestListOccurrences_InvalidStatus() {
	w := suite.request(http.MethodGet, "/api/v1/workplaces/wp-1/recurring-journals/def-1/occurrences?status=done", nil)

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *RecurringJournalHandlerTestSuite) TestGetStatistics() {
	suite.occurrences.On("GetStatistics", mock.Anything, "wp-1", "def-1").
		Return(&domain.OccurrenceStats{
			DefinitionID:   "def-1",
			Total:          2,
			CountsByStatus: map[domain.OccurrenceStatus]int{domain.OccurrenceCompleted: 1, domain.OccurrenceFailed: 1},
			Status:         domain.StatusActive,
		}, nil).Once()

	w := suite.request(http.MethodGet, "/api/v1/workplaces/wp-1/recurring-journals/def-1/stats", nil)

	suite.Equal(http.StatusOK, w.Code)
	var stats domain.OccurrenceStats
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &stats))
	suite.Equal(2, stats.Total)
	suite.Equal(1, stats.CountsByStatus[domain.OccurrenceFailed])
}

func (suite *RecurringJournalHandlerTestSuite) TestRunDue() {
	asOf := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	suite.runs.On("RunDue", mock.Anything, asOf).
		Return(&domain.BatchRunResult{AsOf: asOf, Attempted: 2, Succeeded: 1, Failed: 1}, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/recurring-journals/run-due", map[string]any{"asOf": "2024-03-01"})

	suite.Equal(http.StatusOK, w.Code)
	var batch domain.BatchRunResult
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &batch))
	suite.Equal(2, batch.Attempted)
	suite.Equal(1, batch.Failed)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunDue_RejectsWorkplaceScopedToken() {
	scoped, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   suite.testUserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Workplaces: []string{"wp-1"},
	}).SignedString([]byte(suite.jwtSecret))
	suite.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, "/api/v1/recurring-journals/run-due", nil)
	suite.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+scoped)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusForbidden, w.Code)
	suite.runs.AssertNotCalled(suite.T(), "RunDue", mock.Anything, mock.Anything)
}

func (suite *RecurringJournalHandlerTestSuite) TestRunDue_RejectsFutureAsOf() {
	w := suite.request(http.MethodPost, "/api/v1/recurring-journals/run-due", map[string]any{"asOf": "2099-01-01"})

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "later than today")
	suite.runs.AssertNotCalled(suite.T(), "RunDue", mock.Anything, mock.Anything)
}

func (suite *RecurringJournalHandlerTestSuite) TestRequiresAuthentication() {
	req, err := http.NewRequest(http.MethodGet, "/api/v1/workplaces/wp-1/recurring-journals", nil)
	suite.Require().NoError(err)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusUnauthorized, w.Code)
}
