package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/results"
)

// ResultsService is the read side the handlers serve.
type ResultsService interface {
	ListEvaluations(ctx context.Context) ([]results.RunListing, error)
	Describe(ctx context.Context, id string) (*results.RunView, error)
	GetSummary(ctx context.Context, id string) (*domain.ComparisonSummary, error)
	GetCases(ctx context.Context, id string, f results.CaseFilter) ([]domain.JudgementResult, error)
}

// EvaluationHandler serves the /api/evaluations routes.
type EvaluationHandler struct {
	svc ResultsService
}

// NewEvaluationHandler creates the handler over svc.
func NewEvaluationHandler(svc ResultsService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// List returns every run, newest first.
func (h *EvaluationHandler) List(c *gin.Context) {
	runs, err := h.svc.ListEvaluations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": runs})
}

// Get returns a run's metadata and, once judged, its summary.
func (h *EvaluationHandler) Get(c *gin.Context) {
	view, err := h.svc.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Summary returns the comparison summary of a judged run.
func (h *EvaluationHandler) Summary(c *gin.Context) {
	summary, err := h.svc.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Cases returns the per-case verdicts of a judged run, optionally narrowed
// by ?category=high|medium|low|error.
func (h *EvaluationHandler) Cases(c *gin.Context) {
	id := c.Param("id")
	filter := results.CaseFilter{Category: domain.SimilarityCategory(c.Query("category"))}

	cases, err := h.svc.GetCases(c.Request.Context(), id, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"evaluation_id": id,
		"count":         len(cases),
		"cases":         cases,
	})
}

// writeError maps the error class onto a status code. Internal errors are
// reported without detail.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(domain.Classify(err)), domain.NewErrorResponse(err))
}

func statusFor(class domain.ErrorClass) int {
	switch class {
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassValidation, domain.ClassSource:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
