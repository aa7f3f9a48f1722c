// Package pipeline saves a finished generation: the metadata row is written
// first and returned to the caller, then the model files are copied into
// object storage in the background.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/models"
	"github.com/rohits-web03/meshforge/internal/telemetry"
)

const DefaultTransferTimeout = 5 * time.Minute

type MetadataStore interface {
	CreateAsset(ctx context.Context, rec *models.AssetRecord) error
}

// BlobStore writes an object, replacing whatever is already at key.
type BlobStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// BlobOutcome describes one finished background transfer.
type BlobOutcome struct {
	Kind     BlobKind
	Path     string
	Source   string
	Bytes    int
	Err      error
	Duration time.Duration
}

type Option func(*Pipeline)

// WithObserver registers fn to receive every transfer outcome. fn may be
// called from several goroutines at once.
func WithObserver(fn func(BlobOutcome)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTransferTimeout bounds each fetch-and-upload. Zero or negative keeps the
// default.
func WithTransferTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.transferTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

type Pipeline struct {
	metadata        MetadataStore
	blobs           BlobStore
	fetcher         Fetcher
	observer        func(BlobOutcome)
	logger          *zap.Logger
	transferTimeout time.Duration
	now             func() time.Time

	wg sync.WaitGroup
}

func New(metadata MetadataStore, blobs BlobStore, fetcher Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		metadata:        metadata,
		blobs:           blobs,
		fetcher:         fetcher,
		logger:          zap.NewNop(),
		transferTimeout: DefaultTransferTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "asset_pipeline"))
	return p
}

// Save writes the metadata row for result and schedules the blob copies. It
// returns as soon as the row is committed; blob failures are never reported
// to the caller.
func (p *Pipeline) Save(ctx context.Context, ownerID uuid.UUID, name string, result generation.Result) (*models.AssetRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if ownerID == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	if !result.Valid() {
		return nil, ErrNoAssets
	}

	now := p.now()
	ts := now.UnixMilli()
	paths := BuildPaths(ownerID, name, ts, result)

	rec := &models.AssetRecord{
		OwnerID:       ownerID,
		Name:          name,
		GLBPath:       optional(paths.GLB),
		USDZPath:      optional(paths.USDZ),
		ThumbnailPath: optional(paths.Thumbnail),
		CreatedAt:     now.UTC(),
	}
	if err := p.metadata.CreateAsset(ctx, rec); err != nil {
		p.logger.Error("metadata write failed", zap.String("owner", ownerID.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrMetadataWriteFailed, err)
	}

	p.logger.Info("model metadata saved",
		zap.String("id", rec.ID.String()),
		zap.String("owner", ownerID.String()),
		zap.String("name", name),
	)

	p.UploadBlobs(ownerID, name, ts, result)
	return rec, nil
}

// UploadBlobs copies every present asset of result to its storage key in the
// background. Transfers are independent of each other and of any caller
// context, and are not retried.
func (p *Pipeline) UploadBlobs(ownerID uuid.UUID, name string, tsMs int64, result generation.Result) {
	jobs := transfers(BuildPaths(ownerID, name, tsMs, result), result)
	if len(jobs) == 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		var g errgroup.Group
		for _, t := range jobs {
			g.Go(func() error {
				p.report(t, p.copyBlob(t))
				return nil
			})
		}
		_ = g.Wait()
		p.logger.Debug("background upload finished", zap.String("owner", ownerID.String()), zap.Int("blobs", len(jobs)))
	}()
}

type copyResult struct {
	bytes    int
	err      error
	duration time.Duration
}

func (p *Pipeline) copyBlob(t transfer) (res copyResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic during %s transfer: %v", t.kind, r)
		}
		res.duration = time.Since(start)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.transferTimeout)
	defer cancel()

	data, err := p.fetcher.Fetch(ctx, t.source)
	if err != nil {
		res.err = err
		return res
	}
	if err := p.blobs.Upload(ctx, t.key, data, t.kind.ContentType()); err != nil {
		res.err = err
		return res
	}
	res.bytes = len(data)
	return res
}

func (p *Pipeline) report(t transfer, res copyResult) {
	outcome := "success"
	if res.err != nil {
		outcome = "failure"
		p.logger.Warn("blob upload failed",
			zap.String("kind", string(t.kind)),
			zap.String("path", t.key),
			zap.String("source", t.source),
			zap.Error(res.err),
		)
	} else {
		p.logger.Info("blob uploaded",
			zap.String("kind", string(t.kind)),
			zap.String("path", t.key),
			zap.Int("bytes", res.bytes),
			zap.Duration("elapsed", res.duration),
		)
	}
	telemetry.RecordBlobUpload(string(t.kind), outcome, res.bytes)

	if p.observer != nil {
		p.observer(BlobOutcome{
			Kind:     t.kind,
			Path:     t.key,
			Source:   t.source,
			Bytes:    res.bytes,
			Err:      res.err,
			Duration: res.duration,
		})
	}
}

// Wait blocks until every scheduled background upload has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (p *Pipeline) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
