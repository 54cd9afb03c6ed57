package comorbidity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/comorbidity/internal/platform/fhir"
	"github.com/ehr/comorbidity/pkg/pagination"
)

// MaxBatchItems caps the number of requests accepted by the batch endpoint.
const MaxBatchItems = 1000

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/score", h.Score)
	g.POST("/explain", h.Explain)
	g.POST("/score/$batch", h.ScoreBatch)

	g.GET("/rulesets", h.ListRuleSets)
	g.GET("/rulesets/:scheme/:version/:year", h.GetRuleSet)
}

// -- Scoring --

func (h *Handler) Score(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return bindError(c, "body", err)
	}
	ctx := c.Request().Context()

	if c.QueryParam("_format") == "fhir" {
		a, err := h.svc.Explain(ctx, req)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, a.ToRiskAssessment(c.QueryParam("subject"), h.now()))
	}

	a, err := h.svc.Score(ctx, req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Explain(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return bindError(c, "body", err)
	}
	a, err := h.svc.Explain(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type batchRequest struct {
	Items []BatchItem `json:"items"`
}

type batchResponse struct {
	Total   int           `json:"total"`
	Failed  int           `json:"failed"`
	Results []BatchResult `json:"results"`
}

func (h *Handler) ScoreBatch(c echo.Context) error {
	var body batchRequest
	if err := c.Bind(&body); err != nil {
		return bindError(c, "items", err)
	}
	if len(body.Items) == 0 {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeRequired, "items must not be empty"))
	}
	if len(body.Items) > MaxBatchItems {
		return c.JSON(http.StatusBadRequest, fhir.TooCostlyOutcome(
			fmt.Sprintf("batch of %d items exceeds the limit of %d", len(body.Items), MaxBatchItems)))
	}

	results, err := h.svc.ScoreBatch(c.Request().Context(), body.Items)
	if err != nil {
		return errorResponse(c, err)
	}
	resp := batchResponse{Total: len(results), Results: results}
	for _, r := range results {
		if r.Err() != nil {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Rule sets --

func (h *Handler) ListRuleSets(c echo.Context) error {
	infos, err := h.svc.ListRuleSets(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.Page(infos, pg, c.Request().URL.Path))
}

func (h *Handler) GetRuleSet(c echo.Context) error {
	year, err := ParseYear(c.Param("year"))
	if err != nil || year == 0 {
		return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("year", "must be a positive year"))
	}
	rs, err := h.svc.GetRuleSet(c.Request().Context(), c.Param("scheme"), c.Param("version"), int(year))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, rs)
}

// -- Errors --

// StatusFor maps a scoring error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCodes), errors.Is(err, ErrInvalidYear), errors.Is(err, ErrUnknownScheme):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownVersion), errors.Is(err, ErrUnknownYear):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(c echo.Context, err error) error {
	status := StatusFor(err)
	switch {
	case errors.Is(err, ErrInvalidCodes):
		return c.JSON(status, fhir.ValidationOutcome("codes", err.Error()))
	case errors.Is(err, ErrInvalidYear):
		return c.JSON(status, fhir.ValidationOutcome("year", err.Error()))
	case status == http.StatusBadRequest:
		return c.JSON(status, fhir.NotSupportedOutcome(err.Error()))
	case status == http.StatusNotFound:
		return c.JSON(status, fhir.NotFoundOutcome(err.Error()))
	case status == http.StatusServiceUnavailable:
		return c.JSON(status, fhir.TimeoutOutcome())
	default:
		return c.JSON(status, fhir.InternalErrorOutcome("internal server error"))
	}
}

// bindError answers a failed Bind. A body cut off by the size limit while
// reading is a 413, everything else is a 400 on field.
func bindError(c echo.Context, field string, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return c.JSON(http.StatusRequestEntityTooLarge, fhir.TooCostlyOutcome("request body too large"))
	}
	return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome(field, bindMessage(err)))
}

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			return he.Internal.Error()
		}
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}
