package slides

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"slidecast/internal/storage"
)

const defaultUploadConcurrency = 4

// Result summarises a processed upload. ImageURLs lists only the pages whose
// upload succeeded, in page order.
type Result struct {
	TotalPages int
	ImageURLs  []string
}

// Processor turns an uploaded file into slide records: PDFs are rasterized
// page by page, single images pass straight through. Page uploads fan out
// concurrently and join before any slide record is written, so record order
// always follows page order.
type Processor struct {
	Store       storage.Repository
	Uploader    storage.ObjectUploader
	Rasterizer  Rasterizer
	Logger      *slog.Logger
	Concurrency int
}

// Process ingests the named file for the session. Filenames must carry a
// .pdf or .jpg extension; anything else is rejected before any work happens.
func (p *Processor) Process(ctx context.Context, sessionID, filename string, data []byte) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	type page struct {
		number      int
		contentType string
		extension   string
		data        []byte
	}

	var pages []page
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		rendered, err := p.Rasterizer.Render(ctx, data)
		if err != nil {
			return Result{}, fmt.Errorf("render pdf: %w", err)
		}
		for _, r := range rendered {
			pages = append(pages, page{number: r.Number, contentType: "image/png", extension: "png", data: r.PNG})
		}
	case ".jpg":
		pages = []page{{number: 1, contentType: "image/jpeg", extension: "jpg", data: data}}
	default:
		return Result{}, fmt.Errorf("unsupported file type %q", path.Ext(filename))
	}

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}

	batchID := uuid.NewString()
	urls := make([]string, len(pages))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for idx, pg := range pages {
		idx, pg := idx, pg
		group.Go(func() error {
			key := fmt.Sprintf("sessions/%s/%s/page-%d.%s", sessionID, batchID, pg.number, pg.extension)
			url, err := p.Uploader.Upload(groupCtx, key, pg.contentType, pg.data)
			if err != nil {
				// A failed page is dropped from the deck rather than
				// failing the whole upload.
				logger.Warn("slide upload failed",
					slog.String("session_id", sessionID),
					slog.Int("page", pg.number),
					slog.String("error", err.Error()))
				return nil
			}
			urls[idx] = url
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	uploaded := make([]string, 0, len(urls))
	for _, url := range urls {
		if url != "" {
			uploaded = append(uploaded, url)
		}
	}

	if len(uploaded) > 0 {
		if _, err := p.Store.AppendSlides(sessionID, uploaded); err != nil {
			return Result{}, fmt.Errorf("record slides: %w", err)
		}
	}

	logger.Info("slides processed",
		slog.String("session_id", sessionID),
		slog.Int("total_pages", len(pages)),
		slog.Int("uploaded", len(uploaded)))

	return Result{TotalPages: len(pages), ImageURLs: uploaded}, nil
}
