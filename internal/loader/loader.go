package loader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

// Loader reads every document in a directory.
type Loader interface {
	Load(ctx context.Context, dir string) ([]domain.Document, error)
}

// Directory loads the PDFs directly inside a directory, in lexical order of
// file name. A missing directory yields no documents.
type Directory struct {
	log         *logger.Logger
	extractor   Extractor
	concurrency int
	now         func() time.Time
}

var _ Loader = (*Directory)(nil)

func NewDirectory(log *logger.Logger, extractor Extractor, concurrency int) *Directory {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Directory{
		log:         log.With("service", "DirectoryLoader", "extractor", extractor.Name()),
		extractor:   extractor,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (d *Directory) Load(ctx context.Context, dir string) ([]domain.Document, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	docs := make([]domain.Document, len(paths))
	ingestedAt := d.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			txt, err := d.extractor.Extract(gctx, p)
			if err != nil {
				return &domain.LoadError{Source: p, Err: err}
			}
			docs[i] = domain.Document{
				ID:     filepath.Base(p),
				Text:   txt,
				Source: domain.DocumentSource{URI: p, IngestedAt: ingestedAt},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.log.Info("documents loaded", "dir", dir, "count", len(docs))
	return docs, nil
}

// ListPDFs returns the .pdf files (any case) directly inside dir, sorted.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.LoadError{Source: dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
