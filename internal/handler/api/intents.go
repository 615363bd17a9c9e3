package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"Conductor/internal/domain/models"
	"Conductor/internal/usecase"
	xhttp "Conductor/pkg/http"
	"Conductor/pkg/http/middleware"
	xlogger "Conductor/pkg/logger"
)

// CycleAPI is what the HTTP layer needs from the cycle service.
type CycleAPI interface {
	RunCycle(ctx context.Context, req usecase.CycleRequest) (models.PortfolioIntent, error)
	Latest(ctx context.Context) (models.PortfolioIntent, error)
	Get(ctx context.Context, intentID string) (models.PortfolioIntent, error)
	List(ctx context.Context, limit int) ([]models.PortfolioIntent, error)
}

// IntentsHandler serves stored intents and on-demand cycles.
type IntentsHandler struct {
	logger  *xlogger.Logger
	cycles  CycleAPI
	limiter *middleware.RateLimiter
}

// NewIntentsHandler builds the handler. A nil limiter leaves POST /api/cycles unthrottled.
func NewIntentsHandler(logger *xlogger.Logger, cycles CycleAPI, limiter *middleware.RateLimiter) *IntentsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &IntentsHandler{logger: logger, cycles: cycles, limiter: limiter}
}

func (h *IntentsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/intents/latest", h.Latest)
	g.GET("/intents/:id", h.Get)
	g.GET("/intents", h.List)

	var mws []echo.MiddlewareFunc
	if h.limiter != nil {
		mws = append(mws, h.limiter.Middleware("cycles"))
	}
	g.POST("/cycles", h.RunCycle, mws...)
}

func (h *IntentsHandler) Latest(c echo.Context) error {
	intent, err := h.cycles.Latest(c.Request().Context())
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, intent)
}

func (h *IntentsHandler) Get(c echo.Context) error {
	intent, err := h.cycles.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, intent)
}

func (h *IntentsHandler) List(c echo.Context) error {
	req := &models.IntentListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.cycles.List(c.Request().Context(), req.Limit)
	if err != nil {
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// RunCycle runs one cycle synchronously and returns its intent. A cycle whose
// intent could not be stored still answers 500.
func (h *IntentsHandler) RunCycle(c echo.Context) error {
	req := &models.RunCycleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	asOf, err := xhttp.ParseAsOf(req.AsOf)
	if err != nil {
		return xhttp.ErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	persist := req.ShouldPersist()

	intent, err := h.cycles.RunCycle(c.Request().Context(), usecase.CycleRequest{
		AsOf:         asOf,
		SizingMethod: req.SizingMethod,
		Persist:      &persist,
	})
	if err != nil {
		h.logger.Error("run cycle failed", xlogger.Error(err))
		return xhttp.ErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, intent)
}
