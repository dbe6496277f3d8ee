package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uniguide/corrections-api/internal/models"
	appErrors "github.com/uniguide/corrections-api/pkg/errors"
	"github.com/uniguide/corrections-api/pkg/export"
	"github.com/uniguide/corrections-api/pkg/response"
)

type statsService interface {
	Statistics(ctx context.Context) (*models.CorrectionStatistics, error)
	ExportDataset(ctx context.Context) (*export.Dataset, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// StatsHandler exposes the statistics rollup and its export formats.
type StatsHandler struct {
	service statsService
	csv     csvRenderer
	pdf     pdfRenderer
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService, csv csvRenderer, pdf pdfRenderer) *StatsHandler {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &StatsHandler{service: service, csv: csv, pdf: pdf}
}

// Statistics godoc
// @Summary Correction workflow statistics
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics [get]
func (h *StatsHandler) Statistics(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stats service not configured"))
		return
	}
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Download the statistics rollup as CSV or PDF
// @Tags Statistics
// @Produce octet-stream
// @Param format query string false "csv or pdf (default csv)"
// @Success 200
// @Router /statistics/export [get]
func (h *StatsHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stats service not configured"))
		return
	}
	dataset, err := h.service.ExportDataset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case "csv":
		data, err := h.csv.Render(*dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV export"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"correction-stats-%s.csv\"", stamp))
		c.Data(http.StatusOK, "text/csv", data)
	case "pdf":
		data, err := h.pdf.Render(*dataset, "Correction Statistics")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF export"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"correction-stats-%s.pdf\"", stamp))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}
