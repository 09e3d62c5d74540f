package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/factory"
	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/log"
	"github.com/bascanada/logexplorer/pkg/query"
)

// errNoTarget wraps config.ErrNoTarget with the flags that select one.
var errNoTarget = fmt.Errorf("%w, use --view or --backend with --stream", config.ErrNoTarget)

// newBackends is replaced in tests.
var newBackends = func(backends config.Backends) (factory.BackendFactory, error) {
	return factory.New(backends)
}

// target is what a command explores: a backend, a stream and the merged
// view settings.
type target struct {
	name    string
	cfg     *config.Config
	view    config.View
	backend backend.Backend
}

// resolveTarget loads the config and picks the view named by --view, a
// backend plus stream from the flags, or the view of the last session.
func resolveTarget() (*target, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	t := &target{cfg: cfg, name: viewName}
	if t.name == "" && backendName == "" {
		if st, err := config.LoadState(); err == nil && st.View != "" {
			if _, ok := cfg.Views[st.View]; ok {
				log.Debug("cmd: reopening view %s", st.View)
				t.name = st.View
			}
		}
	}

	if t.view, err = cfg.Resolve(t.name, backendName, stream); err != nil {
		if errors.Is(err, config.ErrNoTarget) {
			return nil, errNoTarget
		}
		return nil, err
	}

	f, err := newBackends(cfg.Backends)
	if err != nil {
		return nil, err
	}
	if t.backend, err = f.Get(t.view.Backend); err != nil {
		return nil, fmt.Errorf("backend %s: %w", t.view.Backend, err)
	}
	return t, nil
}

// timeRange resolves the window from the flags, falling back to the view.
func (t *target) timeRange(now time.Time) (time.Time, time.Time, error) {
	return t.view.Window(from, to, last, now)
}

// applied compiles the view filters and the --filter flags into one
// committed query. It is nil when nothing filters.
func (t *target) applied(fields []backend.Field) (*filter.AppliedQuery, error) {
	exprs := append(append([]string{}, t.view.Filters...), filters...)
	return query.Compile(fields, t.view.Explorer.BuilderOptions(), exprs...)
}

// sql is the raw statement from the flags or the view.
func (t *target) sql() string {
	if sqlStmt != "" {
		return sqlStmt
	}
	return t.view.SQL
}

// controller builds a page controller primed with the target's stream,
// window, filter and sort.
func (t *target) controller(ctx context.Context, now time.Time) (*explorer.Controller, error) {
	opts := t.view.Explorer.ControllerOptions()
	if perPage > 0 {
		opts.PerPage = perPage
	}
	ctrl := explorer.NewController(t.backend, opts)
	ctrl.SetStream(t.view.Stream)

	start, end, err := t.timeRange(now)
	if err != nil {
		return nil, err
	}
	ctrl.SetTimeRange(start, end)

	if sql := t.sql(); sql != "" {
		ctrl.SetSQL(sql)
	} else {
		applied, err := t.applied(nil)
		if err != nil {
			return nil, err
		}
		ctrl.ApplyFilter(applied)
	}

	if sortBy != "" {
		sort, err := explorer.ParseSort(sortBy)
		if err != nil {
			return nil, err
		}
		if err := ctrl.Sort(ctx, sort.Column, sort.Order); err != nil {
			return nil, err
		}
	}
	return ctrl, nil
}
