package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	"Conductor/internal/usecase"
	"Conductor/pkg/http/middleware"
)

type fakeCycles struct {
	intents []models.PortfolioIntent
	lastReq usecase.CycleRequest
	runErr  error
}

func (f *fakeCycles) RunCycle(_ context.Context, req usecase.CycleRequest) (models.PortfolioIntent, error) {
	f.lastReq = req
	if f.runErr != nil {
		return models.PortfolioIntent{}, f.runErr
	}
	return models.PortfolioIntent{IntentID: "new", TradeAllowed: true}, nil
}

func (f *fakeCycles) Latest(context.Context) (models.PortfolioIntent, error) {
	if len(f.intents) == 0 {
		return models.PortfolioIntent{}, models.ErrIntentNotFound
	}
	return f.intents[0], nil
}

func (f *fakeCycles) Get(_ context.Context, id string) (models.PortfolioIntent, error) {
	for _, in := range f.intents {
		if in.IntentID == id {
			return in, nil
		}
	}
	return models.PortfolioIntent{}, models.ErrIntentNotFound
}

func (f *fakeCycles) List(_ context.Context, limit int) ([]models.PortfolioIntent, error) {
	if limit < len(f.intents) {
		return f.intents[:limit], nil
	}
	return f.intents, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusTooManyRequests {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func newEcho(cycles CycleAPI, limiter *middleware.RateLimiter) *echo.Echo {
	e := echo.New()
	NewIntentsHandler(nil, cycles, limiter).RegisterRoutes(e)
	return e
}

func TestIntentsHandler_Reads(t *testing.T) {
	cycles := &fakeCycles{intents: []models.PortfolioIntent{
		{IntentID: "i-2", Explain: "second"},
		{IntentID: "i-1", Explain: "first"},
	}}
	e := newEcho(cycles, nil)

	code, env := serve(t, e, http.MethodGet, "/api/intents/latest", "")
	assert.Equal(t, http.StatusOK, code)
	var intent models.PortfolioIntent
	require.NoError(t, json.Unmarshal(env.Data, &intent))
	assert.Equal(t, "i-2", intent.IntentID)

	code, env = serve(t, e, http.MethodGet, "/api/intents/i-1", "")
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &intent))
	assert.Equal(t, "first", intent.Explain)

	code, _ = serve(t, e, http.MethodGet, "/api/intents/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, env = serve(t, e, http.MethodGet, "/api/intents?limit=1", "")
	assert.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.PortfolioIntent `json:"rows"`
		Total int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)

	code, _ = serve(t, e, http.MethodGet, "/api/intents?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIntentsHandler_LatestEmpty(t *testing.T) {
	code, _ := serve(t, newEcho(&fakeCycles{}, nil), http.MethodGet, "/api/intents/latest", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIntentsHandler_RunCycle(t *testing.T) {
	cycles := &fakeCycles{}
	e := newEcho(cycles, nil)

	code, env := serve(t, e, http.MethodPost, "/api/cycles", `{"as_of":"2024-03-01T21:00:00Z","sizing_method":"equal_weight","persist":false}`)
	assert.Equal(t, http.StatusCreated, code)
	var intent models.PortfolioIntent
	require.NoError(t, json.Unmarshal(env.Data, &intent))
	assert.Equal(t, "new", intent.IntentID)

	require.NotNil(t, cycles.lastReq.AsOf)
	assert.Equal(t, time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC), *cycles.lastReq.AsOf)
	assert.Equal(t, "equal_weight", cycles.lastReq.SizingMethod)
	require.NotNil(t, cycles.lastReq.Persist)
	assert.False(t, *cycles.lastReq.Persist)

	code, _ = serve(t, e, http.MethodPost, "/api/cycles", "")
	assert.Equal(t, http.StatusCreated, code)
	assert.Nil(t, cycles.lastReq.AsOf)
	assert.True(t, *cycles.lastReq.Persist, "persist defaults to true")

	code, _ = serve(t, e, http.MethodPost, "/api/cycles", `{"sizing_method":"kelly"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	cycles.runErr = models.ErrConfig
	code, _ = serve(t, e, http.MethodPost, "/api/cycles", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIntentsHandler_RateLimited(t *testing.T) {
	e := newEcho(&fakeCycles{}, middleware.NewRateLimiter(2, 0))

	for i := 0; i < 2; i++ {
		code, _ := serve(t, e, http.MethodPost, "/api/cycles", "")
		assert.Equal(t, http.StatusCreated, code)
	}
	code, _ := serve(t, e, http.MethodPost, "/api/cycles", "")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// reads are not throttled
	code, _ = serve(t, e, http.MethodGet, "/api/intents", "")
	assert.Equal(t, http.StatusOK, code)
}
