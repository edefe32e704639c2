package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/api"
	"github.com/phrazzld/scry-verify/internal/api/middleware"
	"github.com/phrazzld/scry-verify/internal/api/shared"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/domain/quality"
	"github.com/phrazzld/scry-verify/internal/domain/srs"
	"github.com/phrazzld/scry-verify/internal/events"
	"github.com/phrazzld/scry-verify/internal/generation"
	"github.com/phrazzld/scry-verify/internal/lexicon"
	"github.com/phrazzld/scry-verify/internal/mocks"
	"github.com/phrazzld/scry-verify/internal/platform/memory"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/auth"
	"github.com/phrazzld/scry-verify/internal/service/verification"
	"github.com/phrazzld/scry-verify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testAPI is the full learner API over the in-memory backend. Tokens are
// learner ids; anything else is rejected.
type testAPI struct {
	router  http.Handler
	stores  store.Stores
	learner uuid.UUID
	target  *domain.LexicalItem
	sparse  *domain.LexicalItem
}

func lexItem(word, definition, sentence string) *domain.LexicalItem {
	return &domain.LexicalItem{
		ID:              uuid.New(),
		LexemeID:        uuid.New(),
		Word:            word,
		Definition:      definition,
		ExampleSentence: sentence,
	}
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	target := lexItem("break", "a sudden opportunity", "Landing that role was her big break.")
	brake := lexItem("brake", "a device for slowing a vehicle", "She pressed the brake at the light.")
	brick := lexItem("brick", "a block of baked clay", "He laid one brick at a time.")
	bleak := lexItem("bleak", "cold and miserable", "The moor looked bleak in winter.")
	for _, d := range []*domain.LexicalItem{brake, brick, bleak} {
		target.Relations = append(target.Relations, domain.Relation{Type: domain.RelationConfusable, TargetItemID: d.ID})
	}
	sparse := lexItem("glib", "fluent but insincere", "His glib answer fooled no one.")
	sparse.Relations = []domain.Relation{{Type: domain.RelationConfusable, TargetItemID: brick.ID}}
	lexicalStore := lexicon.NewMemoryStore(target, brake, brick, bleak, sparse)

	db := memory.NewDB(nil)
	stores := memory.NewStores(db)
	tx := memory.NewTransactor(db)

	srsService := srs.NewDefaultService()
	assignments := service.NewAssignmentService(stores, tx, srsService, service.DefaultMigrationThreshold, logger,
		service.WithCoinFlip(func() bool { return true }))

	assembler := generation.NewAssembler(lexicalStore,
		generation.NewDistractorSelector(lexicalStore, generation.NewDefaultParams(), logger), logger)
	selector := service.NewSelectorService(stores, tx, assembler,
		service.SelectorConfig{QualityFloor: service.DefaultQualityFloor}, logger)
	qualityService := service.NewQualityService(stores.Statistics, nil,
		service.QualityConfig{Params: quality.NewDefaultParams()}, logger)
	verifications := verification.NewService(stores, tx, assignments, srsService,
		srs.NewRatingPolicy(srs.NewDefaultRatingPolicyParams()),
		events.NewInMemoryEventEmitter(logger),
		verification.Config{QualityParams: quality.NewDefaultParams(), RecomputeInline: true},
		logger)

	jwtService := &mocks.MockJWTService{
		ValidateTokenFn: func(_ context.Context, token string) (*auth.Claims, error) {
			id, err := uuid.Parse(token)
			if err != nil {
				return nil, auth.ErrInvalidToken
			}
			return mocks.ClaimsFor(id), nil
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(logger))
	r.Route("/api", api.Routes(middleware.NewAuthMiddleware(jwtService), api.Handlers{
		Verifications: api.NewVerificationHandler(verifications, selector, logger),
		Questions:     api.NewQuestionHandler(selector, verifications, qualityService, logger),
		Learners:      api.NewLearnerHandler(assignments, logger),
	}))

	return &testAPI{
		router:  r,
		stores:  stores,
		learner: uuid.New(),
		target:  target,
		sparse:  sparse,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+a.learner.String())
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestRoutesRequireToken(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/verifications/due", nil)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/verifications/due", nil)
	req.Header.Set("Authorization", "Bearer not-a-learner")
	rr = httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.TraceIDHeader))
}

func TestVerificationFlow(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	// Nothing is due before the first verification.
	rr := a.do(t, http.MethodGet, "/api/verifications/next", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/api/verifications", api.StartVerificationRequest{ItemID: a.target.ID.String()})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	card := decode[api.CardResponse](t, rr)
	assert.Equal(t, a.target.ID.String(), card.ItemID)
	assert.Equal(t, string(domain.AlgorithmRuleBased), card.AlgorithmType)

	rr = a.do(t, http.MethodGet, "/api/verifications/due", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, a.target.ID.String(), decode[api.CardResponse](t, rr).ItemID)

	rr = a.do(t, http.MethodGet, "/api/verifications/next", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "is_correct")
	assert.NotContains(t, rr.Body.String(), "correct_index")
	next := decode[api.VerificationResponse](t, rr)
	assert.Equal(t, a.target.ID.String(), next.Question.TargetItemID)
	require.Len(t, next.Question.Options, 4)

	stored, err := a.stores.Questions.Get(context.Background(), uuid.MustParse(next.Question.ID))
	require.NoError(t, err)

	attemptID := uuid.New()
	body := map[string]interface{}{
		"attempt_id":            attemptID.String(),
		"selected_option_index": stored.CorrectIndex,
		"response_time_ms":      1200,
		"ability_estimate":      0.7,
	}
	path := "/api/questions/" + next.Question.ID + "/attempts"

	rr = a.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	result := decode[api.AttemptResponse](t, rr)
	assert.True(t, result.Correct)
	assert.Equal(t, attemptID.String(), result.AttemptID)
	assert.Equal(t, domain.RatingPerfect.String(), result.Rating)
	assert.NotEmpty(t, result.Explanation)
	assert.Equal(t, 1, result.Card.TotalReviews)

	rr = a.do(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "Attempt already recorded")

	rr = a.do(t, http.MethodGet, "/api/questions/"+next.Question.ID+"/statistics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[api.StatisticsResponse](t, rr)
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.CorrectAttempts)
	assert.Nil(t, stats.DifficultyIndex)

	// The card is scheduled for a later day.
	rr = a.do(t, http.MethodGet, "/api/verifications/due", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestGetItemQuestion(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	tests := []struct {
		name       string
		itemID     string
		wantStatus int
	}{
		{"generated question", a.target.ID.String(), http.StatusOK},
		{"insufficient lexical data", a.sparse.ID.String(), http.StatusUnprocessableEntity},
		{"unknown item", uuid.NewString(), http.StatusFailedDependency},
		{"malformed id", "not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, http.MethodGet, "/api/items/"+tt.itemID+"/question", nil)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantStatus == http.StatusOK {
				q := decode[api.QuestionResponse](t, rr)
				assert.Equal(t, tt.itemID, q.TargetItemID)
				assert.NotContains(t, rr.Body.String(), "is_correct")
			}
		})
	}
}

func TestRecordAttemptValidation(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	unknown := "/api/questions/" + uuid.NewString() + "/attempts"

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
		wantMsg    string
	}{
		{"malformed json", unknown, `{"selected_option_index":`, http.StatusBadRequest, "Invalid request format"},
		{"missing fields", unknown, map[string]int{"selected_option_index": 0}, http.StatusBadRequest, "Invalid response_time_ms"},
		{
			"ability out of range",
			unknown,
			map[string]interface{}{"selected_option_index": 0, "response_time_ms": 900, "ability_estimate": 1.5},
			http.StatusBadRequest,
			"Invalid ability_estimate",
		},
		{
			"unknown context",
			unknown,
			map[string]interface{}{"selected_option_index": 0, "response_time_ms": 900, "ability_estimate": 0.5, "context": "quiz"},
			http.StatusBadRequest,
			"Invalid context",
		},
		{
			"unknown question",
			unknown,
			map[string]interface{}{"selected_option_index": 0, "response_time_ms": 900, "ability_estimate": 0.5},
			http.StatusNotFound,
			"Question not found",
		},
		{
			"malformed question id",
			"/api/questions/xyz/attempts",
			map[string]interface{}{"selected_option_index": 0, "response_time_ms": 900, "ability_estimate": 0.5},
			http.StatusBadRequest,
			"Invalid request data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := a.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), tt.wantMsg)
		})
	}
}

func TestLearnerAlgorithm(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rr := a.do(t, http.MethodGet, "/api/learners/me/algorithm", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode[api.AssignmentResponse](t, rr)
	assert.Equal(t, string(domain.AlgorithmRuleBased), first.Algorithm)
	assert.Equal(t, string(domain.AssignmentRandom), first.AssignmentReason)

	rr = a.do(t, http.MethodGet, "/api/learners/me/algorithm", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first, decode[api.AssignmentResponse](t, rr))

	rr = a.do(t, http.MethodPost, "/api/learners/me/algorithm/migrate", api.MigrateRequest{Consent: false})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Consent is required")

	rr = a.do(t, http.MethodPost, "/api/learners/me/algorithm/migrate", api.MigrateRequest{Consent: true})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "not eligible")
}

func TestExcludeParameter(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rr := a.do(t, http.MethodGet, "/api/verifications/due?exclude=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodPost, "/api/verifications", api.StartVerificationRequest{ItemID: a.target.ID.String()})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, http.MethodGet, "/api/verifications/due?exclude="+uuid.NewString()+","+uuid.NewString(), nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStartVerificationValidation(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/api/verifications", api.StartVerificationRequest{ItemID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid item_id: must be a UUID")

	rr = a.do(t, http.MethodPost, "/api/verifications", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerMapsServiceErrors(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	learner := uuid.New()

	verifications := &mocks.MockVerificationService{
		RecordAttemptFn: func(context.Context, verification.AttemptRequest) (*verification.AttemptResult, error) {
			return nil, verification.NewRecordAttemptError("failed", context.DeadlineExceeded)
		},
	}
	db := memory.NewDB(nil)
	stores := memory.NewStores(db)
	selector := service.NewSelectorService(stores, memory.NewTransactor(db),
		generation.NewAssembler(lexicon.NewMemoryStore(),
			generation.NewDistractorSelector(lexicon.NewMemoryStore(), generation.NewDefaultParams(), logger), logger),
		service.SelectorConfig{}, logger)
	handler := api.NewQuestionHandler(selector, verifications,
		service.NewQualityService(stores.Statistics, nil, service.QualityConfig{Params: quality.NewDefaultParams()}, logger),
		logger)

	r := chi.NewRouter()
	r.Post("/questions/{id}/attempts", handler.RecordAttempt)

	body := `{"selected_option_index":1,"response_time_ms":800,"ability_estimate":0.4,"context":"practice"}`
	req := httptest.NewRequest(http.MethodPost, "/questions/"+uuid.NewString()+"/attempts", strings.NewReader(body))
	req = req.WithContext(shared.WithLearnerID(context.Background(), learner))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "Failed to record attempt")
	assert.NotContains(t, rr.Body.String(), "deadline")

	require.Len(t, verifications.Requests, 1)
	got := verifications.Requests[0]
	assert.Equal(t, learner, got.LearnerID)
	assert.Equal(t, domain.ContextPractice, got.Context)
	assert.Equal(t, uuid.Nil, got.AttemptID)
	assert.InDelta(t, 0.4, got.AbilityEstimate, 1e-9)
}
