package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/usecase"
)

var logger = loggo.GetLogger("pyramid.http")

// Handler handles HTTP requests for pyramid tiles.
type Handler struct {
	tileUC *usecase.TileUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(tileUC *usecase.TileUseCase) *Handler {
	return &Handler{
		tileUC: tileUC,
	}
}

// GetTiles handles GET /v1/tiles.
func (h *Handler) GetTiles(c *gin.Context) {
	bboxStr := c.Query("bbox")
	widthStr := c.Query("width")
	heightStr := c.Query("height")
	levelStr := c.Query("level")
	dataStr := c.Query("data")

	if bboxStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bbox parameter is required"})
		return
	}
	// The CRS is left unset; the access layer uses the level's CRS.
	env, err := domain.ParseBBox(bboxStr, domain.CRS{})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid bbox: %v", err)})
		return
	}

	width, err := strconv.Atoi(widthStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid width: %v", err)})
		return
	}
	height, err := strconv.Atoi(heightStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid height: %v", err)})
		return
	}

	req := usecase.TileRequest{
		Envelope: env,
		Width:    width,
		Height:   height,
	}

	// Parse optional level index.
	if levelStr != "" {
		level, err := strconv.Atoi(levelStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid level: %v", err)})
			return
		}
		req.Level = &level
	}
	if dataStr != "" {
		data, err := strconv.ParseBool(dataStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid data flag: %v", err)})
			return
		}
		req.IncludeData = data
	}

	// Execute use case.
	response, err := h.tileUC.Execute(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Errorf("tile request %s failed: %v", bboxStr, err)
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetLevels handles GET /v1/levels.
func (h *Handler) GetLevels(c *gin.Context) {
	levels := h.tileUC.ListLevels()
	c.JSON(http.StatusOK, gin.H{
		"levels": levels,
		"count":  len(levels),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
