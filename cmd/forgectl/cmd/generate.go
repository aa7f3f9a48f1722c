package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohits-web03/meshforge/internal/config"
	"github.com/rohits-web03/meshforge/internal/generation"
	"github.com/rohits-web03/meshforge/internal/progress"
)

type generateOptions struct {
	*rootOptions
	interval time.Duration
	timeout  time.Duration
	asJSON   bool
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "generate <image>...",
		Short: "Generate a model from 1 or 4 photos",
		Args:  cobra.RangeArgs(1, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().DurationVar(&opts.interval, "interval", config.Envs.Generation.TickInterval, "progress refresh interval")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits forever)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the final snapshot as JSON")
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, opts *generateOptions, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	images, err := loadImages(paths)
	if err != nil {
		return err
	}

	logger := opts.logger()
	defer logger.Sync()

	client := generation.NewClient(config.GenerationConfig{Endpoint: opts.endpoint, Timeout: opts.timeout}, logger)

	// The observer runs under the controller lock, so it only queues lines.
	// A full queue drops the line; the next phase change prints again.
	lines := make(chan string, 32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range lines {
			io.WriteString(out, line)
		}
	}()

	lastPhase := ""
	printer := func(s generation.Snapshot) {
		if opts.asJSON || s.State != generation.StateSubmitting || s.Phase == lastPhase {
			return
		}
		lastPhase = s.Phase
		select {
		case lines <- fmt.Sprintf("%3d%%  %s\n", s.Percent, s.Phase):
		default:
		}
	}

	estimator := progress.DefaultEstimator()
	estimator.Total = config.Envs.Generation.EstimateWindow
	estimator.Cap = config.Envs.Generation.CapPercent

	ctrl := generation.NewController(client,
		generation.WithInterval(opts.interval),
		generation.WithEstimator(estimator),
		generation.WithObserver(printer),
		generation.WithLogger(logger),
	)
	if err := ctrl.Start(ctx, images); err != nil {
		close(lines)
		<-printed
		return err
	}

	snap, err := ctrl.Wait(ctx)
	if err != nil {
		ctrl.Reset()
	}
	// Nothing is published once the attempt is terminal or reset.
	close(lines)
	<-printed
	if err != nil {
		return fmt.Errorf("generation abandoned: %w", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return err
		}
	} else if snap.State == generation.StateCompleted {
		fmt.Fprintf(out, "100%%  %s\n", snap.Phase)
		printURL(out, "model", snap.Result.ModelURL)
		printURL(out, "usdz", snap.Result.USDZURL)
		printURL(out, "thumbnail", snap.Result.ThumbnailURL)
	}

	if snap.State == generation.StateFailed {
		return fmt.Errorf("generation failed (%s): %s", snap.ErrorKind, snap.Error)
	}
	return nil
}

func printURL(out io.Writer, label, url string) {
	if url != "" {
		fmt.Fprintf(out, "%-10s %s\n", label+":", url)
	}
}

func loadImages(paths []string) ([]generation.Image, error) {
	if !generation.ValidImageCount(len(paths)) {
		return nil, generation.ErrInvalidInputCount
	}

	images := make([]generation.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if len(data) == 0 {
			return nil, errors.New(p + ": empty file")
		}
		images = append(images, generation.Image{
			Data:        data,
			ContentType: http.DetectContentType(data),
			Filename:    filepath.Base(p),
		})
	}
	return images, nil
}
