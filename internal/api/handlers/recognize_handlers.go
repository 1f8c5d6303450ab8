package handlers

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"

	"facespace/internal/core/models"
	"facespace/internal/core/processor"
	"facespace/internal/server/sse"

	"github.com/gin-gonic/gin"
)

// Recognize classifies the uploaded image. Without a "regions" field the
// whole image is one face region.
func (h *APIHandler) Recognize(c *gin.Context) {
	img, source, err := formImage(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	regions := processor.WholeImage(img)
	if raw := c.PostForm("regions"); raw != "" {
		regions, err = parseRegions(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	results, err := h.pool.Recognize(c.Request.Context(), img, regions, source)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "results": results})
}

func parseRegions(raw string) ([]image.Rectangle, error) {
	var regions []models.Region
	if err := json.Unmarshal([]byte(raw), &regions); err != nil {
		return nil, fmt.Errorf("invalid regions: %w", err)
	}
	rects := make([]image.Rectangle, len(regions))
	for i, r := range regions {
		rects[i] = r.Rect()
	}
	return rects, nil
}

type batchResponse struct {
	Source  string                     `json:"source"`
	Results []models.RecognitionResult `json:"results,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// RecognizeBatch classifies every image of "images[]" as one whole-image
// region. Failures are reported per image.
func (h *APIHandler) RecognizeBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["images[]"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no images uploaded"})
		return
	}

	resp := make([]batchResponse, len(files))
	items := make([]processor.BatchItem, 0, len(files))
	positions := make([]int, 0, len(files))
	for i, header := range files {
		resp[i].Source = header.Filename
		img, err := decodeFile(header)
		if err != nil {
			resp[i].Error = err.Error()
			continue
		}
		items = append(items, processor.BatchItem{Source: header.Filename, Image: img})
		positions = append(positions, i)
	}

	for j, r := range h.pool.RecognizeBatch(c.Request.Context(), items) {
		i := positions[j]
		if r.Err != nil {
			resp[i].Error = r.Err.Error()
			continue
		}
		resp[i].Results = r.Results
	}
	c.JSON(http.StatusOK, gin.H{"images": resp})
}

// ListRecognitions returns the most recent recognition outcomes.
func (h *APIHandler) ListRecognitions(c *gin.Context) {
	limit := h.cfg.Server.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	recognitions, err := h.service.Repository().RecentRecognitions(limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recognitions": recognitions})
}

// Events streams recognition events as server-sent events.
func (h *APIHandler) Events(c *gin.Context) {
	if h.sseHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	h.sseHub.Register(client)
	defer h.sseHub.Unregister(client)

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("recognition", string(msg))
			return true
		case <-done:
			return false
		}
	})
}
