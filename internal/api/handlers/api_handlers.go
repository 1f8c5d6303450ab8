package handlers

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"facespace/config"
	"facespace/internal/core/models"
	"facespace/internal/core/processor"
	"facespace/internal/facespace"
	"facespace/internal/server/sse"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

// APIHandler serves the face space JSON API.
type APIHandler struct {
	cfg     *config.Config
	service *processor.Service
	pool    *processor.WorkerPool
	sseHub  *sse.Hub
}

// NewAPIHandler creates the API handler. sseHub may be nil.
func NewAPIHandler(cfg *config.Config, service *processor.Service, pool *processor.WorkerPool, sseHub *sse.Hub) *APIHandler {
	return &APIHandler{
		cfg:     cfg,
		service: service,
		pool:    pool,
		sseHub:  sseHub,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Corpus
	router.POST("/faces", h.EnrollFace)
	router.GET("/faces", h.ListFaces)
	router.DELETE("/faces/:id", h.DeleteFace)
	router.GET("/identities", h.ListIdentities)
	router.DELETE("/identities/:label", h.DeleteIdentity)

	// Model
	router.POST("/train", h.Train)
	router.GET("/model", h.GetModel)
	router.GET("/model/mean.png", h.GetMeanImage)
	router.GET("/model/eigenfaces/:file", h.GetEigenface)
	router.POST("/model/reconstruct", h.Reconstruct)

	// Recognition
	router.POST("/recognize", h.Recognize)
	router.POST("/recognize/batch", h.RecognizeBatch)
	router.GET("/recognitions", h.ListRecognitions)
	router.GET("/events", h.Events)

	// System
	router.GET("/status", h.GetStatus)
}

// ModelInfo describes the active model. Infinite thresholds are reported as null.
type ModelInfo struct {
	PatchWidth         int       `json:"patch_width"`
	PatchHeight        int       `json:"patch_height"`
	Components         int       `json:"components"`
	Samples            int       `json:"samples"`
	Classes            []string  `json:"classes"`
	Metric             string    `json:"metric"`
	Decision           string    `json:"decision"`
	Illumination       string    `json:"illumination"`
	FaceSpaceThreshold *float64  `json:"face_space_threshold"`
	UnknownThreshold   *float64  `json:"unknown_threshold"`
	TrainedAt          time.Time `json:"trained_at"`
}

func newModelInfo(m *facespace.Model) ModelInfo {
	return ModelInfo{
		PatchWidth:         m.PatchWidth,
		PatchHeight:        m.PatchHeight,
		Components:         m.Components(),
		Samples:            m.Samples,
		Classes:            m.ClassLabels,
		Metric:             m.Metric.String(),
		Decision:           m.Mode().String(),
		Illumination:       m.Illumination,
		FaceSpaceThreshold: finite(m.FaceSpaceThreshold),
		UnknownThreshold:   finite(m.UnknownThreshold),
		TrainedAt:          m.TrainedAt,
	}
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// faceResponse is a training face without its pixel data.
type faceResponse struct {
	ID        uint      `json:"id"`
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

func newFaceResponse(f *models.TrainingFace) faceResponse {
	return faceResponse{ID: f.ID, Label: f.Label, Source: f.Source, CreatedAt: f.CreatedAt}
}

// EnrollFace adds an uploaded face to the training corpus.
func (h *APIHandler) EnrollFace(c *gin.Context) {
	img, source, err := formImage(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	region, err := formRegion(c, img)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	face, created, err := h.service.Enroll(c.Request.Context(), img, region, c.PostForm("label"), source)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"face": newFaceResponse(face), "created": created})
}

// ListFaces lists the training corpus.
func (h *APIHandler) ListFaces(c *gin.Context) {
	faces, err := h.service.Repository().ListTrainingFaces()
	if err != nil {
		writeError(c, err)
		return
	}

	label := processor.NormalizeLabel(c.Query("label"))
	resp := make([]faceResponse, 0, len(faces))
	for i := range faces {
		if label != "" && faces[i].Label != label {
			continue
		}
		resp = append(resp, newFaceResponse(&faces[i]))
	}
	c.JSON(http.StatusOK, gin.H{"faces": resp})
}

// DeleteFace removes one training face.
func (h *APIHandler) DeleteFace(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face ID"})
		return
	}

	if err := h.service.Repository().DeleteTrainingFace(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "face not found"})
			return
		}
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListIdentities returns every label with its number of training faces.
func (h *APIHandler) ListIdentities(c *gin.Context) {
	counts, err := h.service.Repository().LabelCounts()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identities": counts})
}

// DeleteIdentity removes all training faces of a label.
func (h *APIHandler) DeleteIdentity(c *gin.Context) {
	label := processor.NormalizeLabel(c.Param("label"))
	deleted, err := h.service.Repository().DeleteLabel(label)
	if err != nil {
		writeError(c, err)
		return
	}
	if deleted == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"label": label, "deleted": deleted})
}

// Train retrains the model from the corpus and makes it current.
func (h *APIHandler) Train(c *gin.Context) {
	model, err := h.service.Train(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": newModelInfo(model)})
}

// GetModel describes the active model.
func (h *APIHandler) GetModel(c *gin.Context) {
	model := h.service.Model()
	if model == nil {
		writeError(c, facespace.ErrModelNotTrained)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": newModelInfo(model)})
}

// GetMeanImage renders the mean face as PNG.
func (h *APIHandler) GetMeanImage(c *gin.Context) {
	model := h.service.Model()
	if model == nil {
		writeError(c, facespace.ErrModelNotTrained)
		return
	}
	writePNG(c, model.MeanImage())
}

// GetEigenface renders one eigenface as PNG. The parameter has the form <index>.png.
func (h *APIHandler) GetEigenface(c *gin.Context) {
	model := h.service.Model()
	if model == nil {
		writeError(c, facespace.ErrModelNotTrained)
		return
	}

	file := c.Param("file")
	if !strings.HasSuffix(file, ".png") {
		c.JSON(http.StatusNotFound, gin.H{"error": "eigenfaces are served as .png"})
		return
	}
	index, err := strconv.Atoi(strings.TrimSuffix(file, ".png"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid eigenface index"})
		return
	}

	img, err := model.EigenfaceImage(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	writePNG(c, img)
}

// Reconstruct renders the face space approximation of the uploaded face as PNG.
func (h *APIHandler) Reconstruct(c *gin.Context) {
	img, _, err := formImage(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	region, err := formRegion(c, img)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch, err := h.service.Reconstruct(c.Request.Context(), img, region)
	if err != nil {
		writeError(c, err)
		return
	}
	writePNG(c, patch.Gray())
}

func writePNG(c *gin.Context, img image.Image) {
	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	if err := imaging.Encode(c.Writer, img, imaging.PNG); err != nil {
		log.WithError(err).Error("Failed to encode PNG")
	}
}

// formImage decodes the uploaded file of field. The second result is the
// source name: the "source" form value or the file name.
func formImage(c *gin.Context, field string) (image.Image, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("no %q file uploaded or invalid form data", field)
	}
	img, err := decodeFile(header)
	if err != nil {
		return nil, "", err
	}

	source := c.PostForm("source")
	if source == "" {
		source = header.Filename
	}
	return img, source, nil
}

func decodeFile(header *multipart.FileHeader) (image.Image, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", header.Filename, err)
	}
	return img, nil
}

// formRegion returns the x,y,w,h region of the form or the whole image if
// neither w nor h is given.
func formRegion(c *gin.Context, img image.Image) (image.Rectangle, error) {
	if c.PostForm("w") == "" && c.PostForm("h") == "" {
		return img.Bounds(), nil
	}
	r, err := parseRegionForm(c)
	if err != nil {
		return image.Rectangle{}, err
	}
	return r.Rect(), nil
}

func parseRegionForm(c *gin.Context) (models.Region, error) {
	var r models.Region
	fields := []struct {
		name string
		dst  *int
	}{{"x", &r.X}, {"y", &r.Y}, {"w", &r.W}, {"h", &r.H}}

	for _, f := range fields {
		v, err := strconv.Atoi(c.DefaultPostForm(f.name, "0"))
		if err != nil {
			return r, fmt.Errorf("invalid region field %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return r, nil
}

// writeError maps service errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, facespace.ErrInvalidRegion), errors.Is(err, processor.ErrEmptyLabel),
		errors.Is(err, facespace.ErrInvalidLabel):
		status = http.StatusBadRequest
	case errors.Is(err, facespace.ErrModelNotTrained):
		status = http.StatusConflict
	case errors.Is(err, facespace.ErrInsufficientData), errors.Is(err, facespace.ErrEmptyClass):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrPoolClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
