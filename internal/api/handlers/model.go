package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rohits-web03/meshforge/internal/api/middleware"
	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/models"
	"github.com/rohits-web03/meshforge/internal/pipeline"
	"github.com/rohits-web03/meshforge/internal/utils"
)

type Saver interface {
	Save(ctx context.Context, ownerID uuid.UUID, name string, result generation.Result) (*models.AssetRecord, error)
}

type AssetStore interface {
	ListAssets(ctx context.Context, owner uuid.UUID) ([]models.AssetRecord, error)
	DeleteAssets(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) (int64, error)
}

// URLResolver turns storage keys into URLs a client can load.
type URLResolver interface {
	ResolveURL(ctx context.Context, key string) (string, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

type ModelHandler struct {
	saver    Saver
	assets   AssetStore
	urls     URLResolver
	registry *generation.Registry
	logger   *zap.Logger
}

func NewModelHandler(saver Saver, assets AssetStore, urls URLResolver, registry *generation.Registry, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{saver: saver, assets: assets, urls: urls, registry: registry, logger: logger}
}

// saveInput names a finished generation of the caller. Asset URLs are only
// ever taken from that generation's result, never from the request.
type saveInput struct {
	Name         string `json:"name"`
	GenerationID string `json:"generationId"`
}

type blobReady struct {
	GLB       *bool `json:"glb,omitempty"`
	USDZ      *bool `json:"usdz,omitempty"`
	Thumbnail *bool `json:"thumbnail,omitempty"`
}

type modelView struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	CreatedAt     time.Time  `json:"createdAt"`
	GLBPath       *string    `json:"glbPath"`
	USDZPath      *string    `json:"usdzPath"`
	ThumbnailPath *string    `json:"thumbnailPath"`
	GLBURL        string     `json:"glbUrl,omitempty"`
	USDZURL       string     `json:"usdzUrl,omitempty"`
	ThumbnailURL  string     `json:"thumbnailUrl,omitempty"`
	Ready         *blobReady `json:"ready,omitempty"`
}

// Create godoc
// @Summary Save a generated model to the user's collection
// @Description Returns once the record is stored. Files keep uploading in the background, so URLs may briefly 404.
// @Tags Models
// @Accept json
// @Produce json
// @Param body body saveInput true "Name plus the id of a finished generation"
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/v1/models [post]
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserIDFromContext(r.Context())

	var input saveInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		badRequest(w, "Invalid input")
		return
	}

	if owner == uuid.Nil {
		utils.JSONError(w, http.StatusUnauthorized, "You must be logged in to save models")
		return
	}
	if strings.TrimSpace(input.GenerationID) == "" {
		badRequest(w, "generationId is required")
		return
	}
	result, ok := h.generationResult(owner, strings.TrimSpace(input.GenerationID))
	if !ok {
		badRequest(w, "Generation has no finished model")
		return
	}

	rec, err := h.saver.Save(r.Context(), owner, input.Name, result)
	switch {
	case errors.Is(err, pipeline.ErrInvalidName):
		badRequest(w, "Please enter a valid name for your model")
		return
	case errors.Is(err, pipeline.ErrNoAssets):
		badRequest(w, "No model files to save")
		return
	case errors.Is(err, pipeline.ErrNotAuthenticated):
		utils.JSONError(w, http.StatusUnauthorized, "You must be logged in to save models")
		return
	case err != nil:
		h.logger.Error("failed to save model", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to save model")
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "Model saved to your collection. Files are uploading in the background.",
		Data:    h.view(r.Context(), *rec, false),
	})
}

func (h *ModelHandler) generationResult(owner uuid.UUID, rawID string) (generation.Result, bool) {
	if h.registry == nil {
		return generation.Result{}, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return generation.Result{}, false
	}
	ctrl, err := h.registry.Get(owner, id)
	if err != nil {
		return generation.Result{}, false
	}
	snap := ctrl.Snapshot()
	if snap.State != generation.StateCompleted || snap.Result == nil {
		return generation.Result{}, false
	}
	return *snap.Result, true
}

// List godoc
// @Summary List saved models, newest first
// @Description URLs may point at files that are still uploading. verify=true adds per-file ready flags.
// @Tags Models
// @Produce json
// @Param verify query bool false "Check each file in storage"
// @Success 200 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/v1/models [get]
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := middleware.UserIDFromContext(r.Context())

	recs, err := h.assets.ListAssets(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to list models", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to load models")
		return
	}

	verify := r.URL.Query().Get("verify") == "true"
	views := make([]modelView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, h.view(r.Context(), rec, verify))
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Models retrieved successfully",
		Data:    views,
	})
}

// Delete godoc
// @Summary Delete one saved model
// @Description Removes the record only. Stored files are left in place.
// @Tags Models
// @Produce json
// @Param id path string true "Model ID"
// @Success 200 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/models/{id} [delete]
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	n, ok := h.deleteIDs(w, r, []uuid.UUID{id})
	if !ok {
		return
	}
	if n == 0 {
		notFound(w, "Model not found")
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Model deleted"})
}

type deleteManyInput struct {
	IDs []uuid.UUID `json:"ids"`
}

// DeleteMany godoc
// @Summary Delete several saved models
// @Tags Models
// @Accept json
// @Produce json
// @Param body body deleteManyInput true "Model IDs"
// @Success 200 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/v1/models/delete [post]
func (h *ModelHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var input deleteManyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || len(input.IDs) == 0 {
		badRequest(w, "Invalid input")
		return
	}
	n, ok := h.deleteIDs(w, r, input.IDs)
	if !ok {
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Models deleted",
		Data:    map[string]int64{"deleted": n},
	})
}

func (h *ModelHandler) deleteIDs(w http.ResponseWriter, r *http.Request, ids []uuid.UUID) (int64, bool) {
	owner := middleware.UserIDFromContext(r.Context())
	n, err := h.assets.DeleteAssets(r.Context(), owner, ids)
	if err != nil {
		h.logger.Error("failed to delete models", zap.Error(err))
		utils.JSONError(w, http.StatusInternalServerError, "Failed to delete models")
		return 0, false
	}
	return n, true
}

func (h *ModelHandler) view(ctx context.Context, rec models.AssetRecord, verify bool) modelView {
	v := modelView{
		ID:            rec.ID,
		Name:          rec.Name,
		CreatedAt:     rec.CreatedAt,
		GLBPath:       rec.GLBPath,
		USDZPath:      rec.USDZPath,
		ThumbnailPath: rec.ThumbnailPath,
	}
	if h.urls == nil {
		return v
	}

	v.GLBURL = h.resolve(ctx, rec.GLBPath)
	v.USDZURL = h.resolve(ctx, rec.USDZPath)
	v.ThumbnailURL = h.resolve(ctx, rec.ThumbnailPath)

	if verify {
		v.Ready = &blobReady{
			GLB:       h.exists(ctx, rec.GLBPath),
			USDZ:      h.exists(ctx, rec.USDZPath),
			Thumbnail: h.exists(ctx, rec.ThumbnailPath),
		}
	}
	return v
}

// resolve tolerates failures so one bad key never hides the rest of the list.
func (h *ModelHandler) resolve(ctx context.Context, key *string) string {
	if key == nil || *key == "" {
		return ""
	}
	u, err := h.urls.ResolveURL(ctx, *key)
	if err != nil {
		h.logger.Warn("failed to resolve model url", zap.String("path", *key), zap.Error(err))
		return ""
	}
	return u
}

func (h *ModelHandler) exists(ctx context.Context, key *string) *bool {
	if key == nil || *key == "" {
		return nil
	}
	ok, err := h.urls.ObjectExists(ctx, *key)
	if err != nil {
		h.logger.Warn("failed to check model file", zap.String("path", *key), zap.Error(err))
		ok = false
	}
	return &ok
}
