package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/api/middleware"
	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/utils"
)

const (
	maxUploadSize = 64 << 20 // 64 MB across all images
	maxWait       = 60 * time.Second
)

type GenerationHandler struct {
	registry *generation.Registry
	logger   *zap.Logger
}

func NewGenerationHandler(registry *generation.Registry, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{registry: registry, logger: logger}
}

type generationView struct {
	ID       uuid.UUID           `json:"id"`
	Snapshot generation.Snapshot `json:"snapshot"`
}

// Create godoc
// @Summary Start generating a 3D model
// @Description Upload exactly 1 or 4 photos as repeated "files" fields. Progress is polled with GET /api/v1/generations/{id}.
// @Tags Generations
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Photos of the object" style(form) explode(true)
// @Success 202 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Failure 429 {object} utils.Payload
// @Router /api/v1/generations [post]
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		badRequest(w, "Invalid image upload form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	images, err := readImages(r.MultipartForm.File["files"])
	if err != nil {
		badRequest(w, "Could not read uploaded images")
		return
	}

	id, snap, err := h.registry.Start(r.Context(), owner, images)
	switch {
	case errors.Is(err, generation.ErrInvalidInputCount):
		badRequest(w, "Please upload exactly 1 or 4 images")
		return
	case errors.Is(err, generation.ErrBusy):
		utils.JSONError(w, http.StatusConflict, "A generation is already in progress")
		return
	case err != nil:
		h.logger.Error("failed to start generation", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to start generation")
		return
	}

	utils.JSONResponse(w, http.StatusAccepted, utils.Payload{
		Success: true,
		Message: "Generation started",
		Data:    generationView{ID: id, Snapshot: snap},
	})
}

// Get godoc
// @Summary Poll a generation
// @Description With wait (e.g. "20s", at most 60s) the call blocks until the attempt finishes or the wait elapses.
// @Tags Generations
// @Produce json
// @Param id path string true "Generation ID"
// @Param wait query string false "Long-poll duration"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/generations/{id} [get]
func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserIDFromContext(r.Context())
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	ctrl, err := h.registry.Get(owner, id)
	if err != nil {
		notFound(w, "Generation not found")
		return
	}

	snap := ctrl.Snapshot()
	if wait, err := time.ParseDuration(r.URL.Query().Get("wait")); err == nil && wait > 0 && !snap.Terminal() {
		ctx, cancel := context.WithTimeout(r.Context(), min(wait, maxWait))
		snap, _ = ctrl.Wait(ctx)
		cancel()
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Generation status",
		Data:    generationView{ID: id, Snapshot: snap},
	})
}

// Reset godoc
// @Summary Cancel a generation and forget it
// @Tags Generations
// @Produce json
// @Param id path string true "Generation ID"
// @Success 200 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/generations/{id} [delete]
func (h *GenerationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserIDFromContext(r.Context())
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Reset(owner, id); err != nil {
		notFound(w, "Generation not found")
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Generation cancelled",
	})
}

func readImages(files []*multipart.FileHeader) ([]generation.Image, error) {
	images := make([]generation.Image, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, err
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = http.DetectContentType(data)
		}
		images = append(images, generation.Image{Data: data, ContentType: ct, Filename: fh.Filename})
	}
	return images, nil
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		badRequest(w, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func notFound(w http.ResponseWriter, msg string) {
	utils.JSONError(w, http.StatusNotFound, msg)
}
