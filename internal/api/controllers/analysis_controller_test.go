package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wingman/internal/models/request_models"
	"wingman/internal/models/response_models"
	"wingman/pkg/middleware"
	"wingman/pkg/utils"
)

type stubAnalysisService struct {
	gotAccount uuid.UUID
	gotReq     request_models.CreateAnalysisRequest
	submit     *response_models.AnalysisSubmitResponse
	err        error
}

func (s *stubAnalysisService) Submit(_ context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisSubmitResponse, error) {
	s.gotAccount, s.gotReq = accountID, req
	return s.submit, s.err
}

func (s *stubAnalysisService) Quote(_ context.Context, accountID uuid.UUID, req request_models.CreateAnalysisRequest) (*response_models.AnalysisQuoteResponse, error) {
	s.gotAccount, s.gotReq = accountID, req
	return &response_models.AnalysisQuoteResponse{CreditsRequired: 5}, s.err
}

func (s *stubAnalysisService) Get(_ context.Context, accountID, _ uuid.UUID) (*response_models.AnalysisStatusResponse, error) {
	s.gotAccount = accountID
	return nil, s.err
}

func (s *stubAnalysisService) Process(context.Context, string) error      { return nil }
func (s *stubAnalysisService) RecoverQueued(context.Context) (int, error) { return 0, nil }

func newAnalysisRouter(svc *stubAnalysisService, accountID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, accountID.String())
		c.Next()
	})
	ctrl := NewAnalysisController(svc, zap.NewNop())
	r.POST("/analyses", ctrl.Submit)
	r.POST("/analyses/quote", ctrl.Quote)
	r.GET("/analyses/:id", ctrl.Get)
	return r
}

func postJSON(r http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitReturnsAcceptedAndPrefersHeaderKey(t *testing.T) {
	accountID := uuid.New()
	svc := &stubAnalysisService{submit: &response_models.AnalysisSubmitResponse{AnalysisID: uuid.New(), Status: "queued", CreditsCharged: 5}}
	r := newAnalysisRouter(svc, accountID)

	w := postJSON(r, "/analyses",
		map[string]any{"input_text": "hello", "idempotency_key": "from-body"},
		map[string]string{IdempotencyHeader: "from-header"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, accountID, svc.gotAccount)
	assert.Equal(t, "from-header", svc.gotReq.IdempotencyKey)
	require.NotNil(t, svc.gotReq.InputText)
	assert.Equal(t, "hello", *svc.gotReq.InputText)

	var body utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)
}

func TestSubmitCacheHitIsOK(t *testing.T) {
	svc := &stubAnalysisService{submit: &response_models.AnalysisSubmitResponse{AnalysisID: uuid.New(), Status: "done", CacheHit: true}}
	w := postJSON(newAnalysisRouter(svc, uuid.New()), "/analyses", map[string]any{"input_text": "hello"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &utils.ValidationError{Field: "input_text", Reason: "too long", MaxChars: 4000}, http.StatusBadRequest},
		{"insufficient credits", &utils.InsufficientCreditsError{Balance: 1, Required: 5}, http.StatusPaymentRequired},
		{"quota", &utils.QuotaExhaustedError{Limit: 1, Used: 1}, http.StatusTooManyRequests},
		{"in progress", utils.ErrIdempotencyInProgress, http.StatusConflict},
		{"queue", utils.ErrQueueUnavailable, http.StatusServiceUnavailable},
		{"database", utils.DBError("insert", assert.AnError), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAnalysisService{err: tt.err}
			w := postJSON(newAnalysisRouter(svc, uuid.New()), "/analyses", map[string]any{"input_text": "hello"}, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
		})
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	svc := &stubAnalysisService{}
	r := newAnalysisRouter(svc, uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analyses/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = utils.ErrAnalysisNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analyses/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
