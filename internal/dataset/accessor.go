package dataset

import (
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Extensions lists the file extensions List picks up.
var Extensions = []string{".yaml", ".yml", ".json"}

// Accessor loads datasets from a filesystem and caches them by name.
// Concurrent loads of the same name parse the file once.
type Accessor struct {
	fs     billy.Filesystem
	logger *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*Dataset
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Accessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAccessor reads datasets from fs.
func NewAccessor(fs billy.Filesystem, opts ...Option) *Accessor {
	a := &Accessor{
		fs:     fs,
		logger: zap.NewNop(),
		cache:  make(map[string]*Dataset),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewOSAccessor reads datasets from a directory on disk.
func NewOSAccessor(root string, opts ...Option) *Accessor {
	return NewAccessor(osfs.New(root), opts...)
}

// Load returns the parsed dataset stored at name, relative to the
// accessor's root. The first successful load is cached; failures are not.
func (a *Accessor) Load(name string) (*Dataset, error) {
	name = path.Clean(name)

	a.mu.RLock()
	ds, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		a.logger.Debug("dataset cache hit", zap.String("name", name))
		return ds, nil
	}

	v, err, shared := a.group.Do(name, func() (any, error) {
		ds, err := a.read(name)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cache[name] = ds
		a.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		a.logger.Debug("dataset load shared", zap.String("name", name))
	}
	return v.(*Dataset), nil
}

func (a *Accessor) read(name string) (*Dataset, error) {
	data, err := util.ReadFile(a.fs, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}
	ds, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("dataset parsed",
		zap.String("name", name),
		zap.String("source", ds.Source),
		zap.Int("constraints", ds.Len()),
		zap.Int("groups", len(ds.groups)),
	)
	return ds, nil
}

// LoadAll loads every name in order and stops at the first failure.
func (a *Accessor) LoadAll(names ...string) ([]*Dataset, error) {
	out := make([]*Dataset, 0, len(names))
	for _, n := range names {
		ds, err := a.Load(n)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

// List returns the dataset files directly under dir, sorted.
func (a *Accessor) List(dir string) ([]string, error) {
	infos, err := a.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list datasets in %s: %w", dir, err)
	}
	var out []string
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		if slices.Contains(Extensions, strings.ToLower(path.Ext(fi.Name()))) {
			out = append(out, path.Join(dir, fi.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// Invalidate drops one cached dataset so the next Load re-reads it.
func (a *Accessor) Invalidate(name string) {
	a.mu.Lock()
	delete(a.cache, path.Clean(name))
	a.mu.Unlock()
}

// Purge empties the cache.
func (a *Accessor) Purge() {
	a.mu.Lock()
	a.cache = make(map[string]*Dataset)
	a.mu.Unlock()
}

// Cached reports how many datasets are cached.
func (a *Accessor) Cached() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
