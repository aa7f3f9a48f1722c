package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rohits-web03/meshforge/internal/api/middleware"
	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/pipeline"
	"github.com/rohits-web03/meshforge/internal/repositories"
	"github.com/rohits-web03/meshforge/internal/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, repositories.Migrate(db))
	return db
}

type stubSubmitter struct {
	release chan struct{}
	raw     *generation.RawResponse
}

func (s *stubSubmitter) Submit(ctx context.Context, _ *generation.Request) (*generation.RawResponse, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.raw, nil
}

type memoryBlobs struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (b *memoryBlobs) Upload(_ context.Context, key string, _ []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[key] = true
	return nil
}

func (b *memoryBlobs) ResolveURL(_ context.Context, key string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

func (b *memoryBlobs) ObjectExists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keys[key], nil
}

type countingFetcher struct {
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	return []byte(url), nil
}

type testEnv struct {
	auth        *AuthHandler
	generations *GenerationHandler
	models      *ModelHandler
	pipeline    *pipeline.Pipeline
	blobs       *memoryBlobs
	fetcher     *countingFetcher
	submitter   *stubSubmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	logger := zap.NewNop()

	sub := &stubSubmitter{raw: &generation.RawResponse{
		Status:  "success",
		GLBURL:  "https://gen.example.com/out.glb",
		USDZURL: "https://gen.example.com/out.usdz",
	}}
	registry := generation.NewRegistry(sub, time.Minute, logger, generation.WithInterval(time.Millisecond))

	blobs := &memoryBlobs{keys: map[string]bool{}}
	assets := repositories.NewAssetRepository(db)
	fetcher := &countingFetcher{}
	pipe := pipeline.New(assets, blobs, fetcher, pipeline.WithLogger(logger))
	t.Cleanup(pipe.Wait)

	return &testEnv{
		auth:        NewAuthHandler(repositories.NewUserRepository(db), "test-secret", false, logger),
		generations: NewGenerationHandler(registry, logger),
		models:      NewModelHandler(pipe, assets, blobs, registry, logger),
		pipeline:    pipe,
		blobs:       blobs,
		fetcher:     fetcher,
		submitter:   sub,
	}
}

func asUser(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), id))
}

func decodePayload(t *testing.T, rec *httptest.ResponseRecorder, data any) utils.Payload {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return utils.Payload{Success: raw.Success, Message: raw.Message}
}

func multipartImages(t *testing.T, n int) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for i := range n {
		fw, err := mw.CreateFormFile("files", "photo.jpg")
		require.NoError(t, err)
		fw.Write([]byte{0xff, 0xd8, 0xff, byte(i)})
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

// finishGeneration runs one generation for owner to completion and returns its id.
func finishGeneration(t *testing.T, env *testEnv, owner uuid.UUID) string {
	t.Helper()
	body, ct := multipartImages(t, 1)
	req := asUser(httptest.NewRequest(http.MethodPost, "/generations", body), owner)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.generations.Create(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started struct {
		ID uuid.UUID `json:"id"`
	}
	decodePayload(t, rec, &started)

	ctrl, err := env.generations.registry.Get(owner, started.ID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := ctrl.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, generation.StateCompleted, snap.State)
	return started.ID.String()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.auth.Register(rec, jsonRequest(http.MethodPost, "/api/v1/auth/sign-up", `{"username":"ada","email":"ada@example.com","password":"pw"}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	env.auth.Register(rec, jsonRequest(http.MethodPost, "/api/v1/auth/sign-up", `{"username":"ada","email":"x@example.com","password":"pw"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.auth.Login(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"ada","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	env.auth.Login(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"ada","password":"pw"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Token string `json:"token"`
	}
	decodePayload(t, rec, &data)
	assert.NotEmpty(t, data.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, data.Token, cookies[0].Value)

	// The issued token passes the auth middleware.
	var seen uuid.UUID
	protected := middleware.AuthMiddleware("test-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.UserIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer "+data.Token)
	protected.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, uuid.Nil, seen)
}

func TestGenerationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	body, ct := multipartImages(t, 2)
	req := asUser(httptest.NewRequest(http.MethodPost, "/generations", body), owner)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.generations.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartImages(t, 1)
	req = asUser(httptest.NewRequest(http.MethodPost, "/generations", body), owner)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	env.generations.Create(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		ID uuid.UUID `json:"id"`
	}
	decodePayload(t, rec, &started)
	require.NotEqual(t, uuid.Nil, started.ID)

	req = asUser(httptest.NewRequest(http.MethodGet, "/generations/"+started.ID.String()+"?wait=2s", nil), owner)
	req.SetPathValue("id", started.ID.String())
	rec = httptest.NewRecorder()
	env.generations.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var polled struct {
		Snapshot generation.Snapshot `json:"snapshot"`
	}
	decodePayload(t, rec, &polled)
	assert.Equal(t, generation.StateCompleted, polled.Snapshot.State)
	assert.Equal(t, 100, polled.Snapshot.Percent)
	require.NotNil(t, polled.Snapshot.Result)
	assert.Equal(t, "https://gen.example.com/out.glb", polled.Snapshot.Result.ModelURL)

	// Another user cannot see it.
	req = asUser(httptest.NewRequest(http.MethodGet, "/generations/"+started.ID.String(), nil), uuid.New())
	req.SetPathValue("id", started.ID.String())
	rec = httptest.NewRecorder()
	env.generations.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerationBusyAndReset(t *testing.T) {
	env := newTestEnv(t)
	env.submitter.release = make(chan struct{})
	defer close(env.submitter.release)
	owner := uuid.New()

	start := func() *httptest.ResponseRecorder {
		body, ct := multipartImages(t, 4)
		req := asUser(httptest.NewRequest(http.MethodPost, "/generations", body), owner)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		env.generations.Create(rec, req)
		return rec
	}

	rec := start()
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started struct {
		ID uuid.UUID `json:"id"`
	}
	decodePayload(t, rec, &started)

	assert.Equal(t, http.StatusConflict, start().Code)

	req := asUser(httptest.NewRequest(http.MethodDelete, "/generations/"+started.ID.String(), nil), owner)
	req.SetPathValue("id", started.ID.String())
	rec = httptest.NewRecorder()
	env.generations.Reset(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusAccepted, start().Code)
}

func TestSaveListAndDeleteModels(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	genID := finishGeneration(t, env, owner)

	rec := httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"   ","generationId":"`+genID+`"}`), owner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"Chair"}`), owner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"Chair","generationId":"`+genID+`"}`), uuid.Nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var ids []string
	for _, name := range []string{"Chair", "Lamp"} {
		rec = httptest.NewRecorder()
		env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"`+name+`","generationId":"`+genID+`"}`), owner))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var saved modelView
		decodePayload(t, rec, &saved)
		require.NotNil(t, saved.GLBPath)
		require.NotNil(t, saved.USDZPath)
		assert.Nil(t, saved.ThumbnailPath)
		assert.Equal(t, "https://cdn.example.com/"+*saved.GLBPath, saved.GLBURL)
		ids = append(ids, saved.ID.String())
		time.Sleep(2 * time.Millisecond)
	}
	env.pipeline.Wait()

	rec = httptest.NewRecorder()
	env.models.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/models?verify=true", nil), owner))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []modelView
	decodePayload(t, rec, &listed)
	require.Len(t, listed, 2)
	assert.Equal(t, "Lamp", listed[0].Name)
	require.NotNil(t, listed[0].Ready)
	assert.True(t, *listed[0].Ready.GLB)
	assert.True(t, *listed[0].Ready.USDZ)
	assert.Nil(t, listed[0].Ready.Thumbnail)

	req := asUser(httptest.NewRequest(http.MethodDelete, "/models/"+ids[0], nil), uuid.New())
	req.SetPathValue("id", ids[0])
	rec = httptest.NewRecorder()
	env.models.Delete(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users cannot delete")

	rec = httptest.NewRecorder()
	env.models.DeleteMany(rec, asUser(jsonRequest(http.MethodPost, "/models/delete", `{"ids":["`+ids[0]+`","`+ids[1]+`"]}`), owner))
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]int64
	decodePayload(t, rec, &deleted)
	assert.Equal(t, int64(2), deleted["deleted"])
}

func TestSaveIgnoresClientSuppliedURLs(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	var internalHits atomic.Int64
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits.Add(1)
		w.Write([]byte("secret"))
	}))
	defer internal.Close()

	bodies := []string{
		`{"name":"x","modelUrl":"` + internal.URL + `/latest/meta-data/iam"}`,
		`{"name":"x","usdzUrl":"http://127.0.0.1:1/a.usdz","thumbnailUrl":"http://169.254.169.254/"}`,
	}
	for _, body := range bodies {
		rec := httptest.NewRecorder()
		env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", body), owner))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	// A finished generation wins over any URLs smuggled alongside it.
	genID := finishGeneration(t, env, owner)
	rec := httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models",
		`{"name":"x","generationId":"`+genID+`","modelUrl":"`+internal.URL+`/latest/meta-data/iam"}`), owner))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env.pipeline.Wait()

	assert.Equal(t, int64(0), internalHits.Load())
	assert.Equal(t, int64(2), env.fetcher.calls.Load(), "only the generation's glb and usdz are fetched")

	rec = httptest.NewRecorder()
	env.models.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/models", nil), owner))
	var listed []modelView
	decodePayload(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].ThumbnailPath)
}

func TestSaveFromGeneration(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()

	body, ct := multipartImages(t, 1)
	req := asUser(httptest.NewRequest(http.MethodPost, "/generations", body), owner)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.generations.Create(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		ID uuid.UUID `json:"id"`
	}
	decodePayload(t, rec, &started)

	ctrl, err := env.generations.registry.Get(owner, started.ID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ctrl.Wait(ctx)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"Vase","generationId":"`+started.ID.String()+`"}`), owner))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved modelView
	decodePayload(t, rec, &saved)
	require.NotNil(t, saved.GLBPath)
	require.NotNil(t, saved.USDZPath)
	assert.True(t, strings.HasSuffix(*saved.USDZPath, ".usdz"))

	rec = httptest.NewRecorder()
	env.models.Create(rec, asUser(jsonRequest(http.MethodPost, "/models", `{"name":"Vase","generationId":"`+uuid.NewString()+`"}`), owner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
