// Package images resolves question images to data URLs and prepares them for export.
package images

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/exam-paper-studio/internal/paper"
)

// Fetcher turns a remote image URL into a data URL.
type Fetcher interface {
	ImageDataURL(ctx context.Context, url string) (string, error)
}

// FallbackRecorder counts placeholder substitutions.
type FallbackRecorder interface {
	ImageFallback()
}

// Resolver fetches question images through the backend proxy. Failures never surface:
// the placeholder is returned instead.
type Resolver struct {
	fetcher  Fetcher
	logger   zerolog.Logger
	recorder FallbackRecorder
	limit    int
}

func NewResolver(fetcher Fetcher, recorder FallbackRecorder, limit int, logger zerolog.Logger) *Resolver {
	if limit <= 0 {
		limit = 4
	}
	return &Resolver{
		fetcher:  fetcher,
		logger:   logger.With().Str("component", "image_resolver").Logger(),
		recorder: recorder,
		limit:    limit,
	}
}

// Resolve returns the data URL for url, or Placeholder if it cannot be fetched.
func (r *Resolver) Resolve(ctx context.Context, url string) string {
	dataURL, err := r.fetcher.ImageDataURL(ctx, url)
	if err != nil || dataURL == "" {
		r.logger.Warn().Err(err).Str("url", url).Msg("image fetch failed, using placeholder")
		if r.recorder != nil {
			r.recorder.ImageFallback()
		}
		return Placeholder
	}
	return dataURL
}

// ResolveAll returns a copy of questions with ImageDataURL filled for every question
// that has an ImageURL. Fetches run concurrently; order is preserved.
func (r *Resolver) ResolveAll(ctx context.Context, questions []paper.Question) []paper.Question {
	out := make([]paper.Question, len(questions))
	copy(out, questions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i := range out {
		if out[i].ImageURL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			out[i].ImageDataURL = r.Resolve(gctx, out[i].ImageURL)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
