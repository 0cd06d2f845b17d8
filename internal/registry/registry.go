// Package registry resolves dataset identifiers to connection handles
// and table metadata. It is loaded once at startup from configuration
// and never mutated during request handling, so concurrent reads need
// no locking.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/consumerlens/consumerlens/internal/adapters/db"
	"github.com/consumerlens/consumerlens/internal/config"
	"github.com/consumerlens/consumerlens/pkg/logger"
)

// Dataset is one configured dataset with its executor.
type Dataset struct {
	ID          int
	Name        string
	Description string
	Table       string
	Dictionary  map[string]string

	exec *db.Executor
}

// Executor returns the dataset's execution handle.
func (d *Dataset) Executor() *db.Executor {
	return d.exec
}

// Info is the listing shape for a dataset.
type Info struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Table       string `json:"table"`
}

// Registry holds all datasets. Immutable after New.
type Registry struct {
	datasets map[int]*Dataset
	ids      []int
	log      logger.Logger
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// New builds the registry and one executor per dataset. The returned
// close function releases every pool.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Registry, func(), error) {
	r := &Registry{datasets: make(map[int]*Dataset, len(cfg.Datasets))}
	for _, opt := range opts {
		opt(r)
	}

	var execs []*db.Executor
	closeAll := func() {
		for _, e := range execs {
			e.Close()
		}
	}

	for _, dc := range cfg.Datasets {
		exec, err := db.New(ctx, db.Config{
			DSN:              dc.DSN,
			MinConns:         int32(dc.MinConns),
			MaxConns:         int32(dc.MaxConns),
			AcquireWait:      time.Duration(cfg.PoolAcquireWaitSec) * time.Second,
			StatementTimeout: time.Duration(cfg.QueryTimeoutSec) * time.Second,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("dataset %d: %w", dc.ID, err)
		}
		execs = append(execs, exec)

		r.datasets[dc.ID] = &Dataset{
			ID:          dc.ID,
			Name:        dc.Name,
			Description: dc.Description,
			Table:       dc.Table,
			Dictionary:  dc.Dictionary,
			exec:        exec,
		}
		r.ids = append(r.ids, dc.ID)

		if r.log != nil {
			r.log.Info(ctx, "dataset registered",
				logger.Int("dataset_id", dc.ID),
				logger.String("name", dc.Name),
				logger.Int("max_conns", dc.MaxConns))
		}
	}
	sort.Ints(r.ids)

	return r, closeAll, nil
}

// List returns every dataset's listing info, ordered by id.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.ids))
	for _, id := range r.ids {
		d := r.datasets[id]
		out = append(out, Info{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Table:       d.Table,
		})
	}
	return out
}

// IDs returns the valid dataset identifiers, sorted.
func (r *Registry) IDs() []int {
	return append([]int(nil), r.ids...)
}

// Get resolves a dataset id. On a miss the error names the valid ids
// so callers can self-correct.
func (r *Registry) Get(id int) (*Dataset, error) {
	d, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %d (valid ids: %s)", ErrDatasetNotFound, id, formatIDs(r.ids))
	}
	return d, nil
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
