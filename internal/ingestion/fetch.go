package ingestion

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

// FetchResult is a per-run download directory. Cleanup removes it.
type FetchResult struct {
	Matched []string
	Dir     string
}

func (r *FetchResult) Cleanup() {
	if r != nil && r.Dir != "" {
		_ = os.RemoveAll(r.Dir)
	}
}

// Fetcher copies the PDFs named by a storage event out of object storage.
type Fetcher struct {
	log         *logger.Logger
	store       objectstore.Store
	prefix      string
	tempRoot    string
	concurrency int
}

func NewFetcher(log *logger.Logger, store objectstore.Store, prefix, tempRoot string) *Fetcher {
	return &Fetcher{
		log:         log.With("service", "ObjectFetcher", "prefix", prefix),
		store:       store,
		prefix:      prefix,
		tempRoot:    tempRoot,
		concurrency: 4,
	}
}

func (f *Fetcher) Prefix() string { return f.prefix }

// Matches reports whether key is the object fileName refers to. fileName may
// be the full object name or a name relative to the prefix.
func (f *Fetcher) Matches(key, fileName string) bool {
	if !objectstore.IsPDF(key) {
		return false
	}
	return key == fileName || key == objectstore.Join(f.prefix, fileName)
}

// Fetch downloads every match into a fresh directory. No match is not an
// error: the result has no Matched entries.
func (f *Fetcher) Fetch(ctx context.Context, fileName string) (*FetchResult, error) {
	objs, err := f.store.List(ctx, f.prefix)
	if err != nil {
		return nil, &domain.LoadError{Source: f.prefix, Err: err}
	}
	keys := f.uniqueByBase(objs, fileName)
	if f.tempRoot != "" {
		if err := os.MkdirAll(f.tempRoot, 0o755); err != nil {
			return nil, &domain.LoadError{Source: f.tempRoot, Err: err}
		}
	}
	dir, err := os.MkdirTemp(f.tempRoot, "ragdesk-fetch-*")
	if err != nil {
		return nil, &domain.LoadError{Source: f.tempRoot, Err: err}
	}
	res := &FetchResult{Dir: dir}
	if len(keys) == 0 {
		f.log.Info("no stored object matches", "file_name", fileName, "listed", len(objs))
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			dest := filepath.Join(dir, path.Base(key))
			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			if err := f.store.Download(gctx, key, out); err != nil {
				_ = out.Close()
				return fmt.Errorf("download %s: %w", key, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			f.log.Debug("downloaded object", "key", key, "dest", dest)
			mu.Lock()
			res.Matched = append(res.Matched, key)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		res.Cleanup()
		return nil, &domain.LoadError{Source: fileName, Err: err}
	}
	return res, nil
}

// uniqueByBase keeps one matching key per base name, since downloads land in
// one flat directory. The exact object name wins over the prefixed form.
func (f *Fetcher) uniqueByBase(objs []objectstore.Object, fileName string) []string {
	var keys []string
	byBase := map[string]int{}
	for _, o := range objs {
		if !f.Matches(o.Key, fileName) {
			continue
		}
		base := path.Base(o.Key)
		i, seen := byBase[base]
		if !seen {
			byBase[base] = len(keys)
			keys = append(keys, o.Key)
			continue
		}
		dropped := o.Key
		if o.Key == fileName {
			dropped, keys[i] = keys[i], o.Key
		}
		f.log.Warn("duplicate match for file name", "file_name", fileName, "kept", keys[i], "dropped", dropped)
	}
	return keys
}
