// Package factory builds backends from configuration. Backends are created
// lazily on first Get so a broken entry only fails the views that use it.
package factory

import (
	"errors"
	"strings"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/backend/postgres"
	"github.com/bascanada/logexplorer/pkg/backend/rest"
	"github.com/bascanada/logexplorer/pkg/config"
	lhttp "github.com/bascanada/logexplorer/pkg/http"
	"github.com/bascanada/logexplorer/pkg/ty"
)

// BackendFactory hands out configured backends by name.
type BackendFactory interface {
	Get(name string) (backend.Backend, error)
}

type backendFactory struct {
	backends ty.LazyMap[backend.Backend]
}

func (f *backendFactory) Get(name string) (backend.Backend, error) {
	b, err := f.backends.Get(name)
	if err != nil {
		return nil, err
	}
	return *b, nil
}

// New returns a factory for the configured backends. It fails only on an
// unknown backend type; option problems surface from Get.
func New(backends config.Backends) (BackendFactory, error) {
	f := &backendFactory{backends: make(ty.LazyMap[backend.Backend])}

	for k, v := range backends {
		options := v.Options
		switch strings.ToLower(v.Type) {
		case config.TypeREST:
			f.backends[k] = ty.GetLazy(func() (*backend.Backend, error) {
				b, err := rest.New(RESTOptions(options))
				if err != nil {
					return nil, err
				}
				var bb backend.Backend = b
				return &bb, nil
			})
		case config.TypePostgres:
			f.backends[k] = ty.GetLazy(func() (*backend.Backend, error) {
				b, err := postgres.Open(postgres.Options{
					DSN:             options.GetString("dsn"),
					TimestampColumn: options.GetString("timestampColumn"),
					MaxOpenConns:    options.GetInt("maxOpenConns", 0),
				})
				if err != nil {
					return nil, err
				}
				var bb backend.Backend = b
				return &bb, nil
			})
		default:
			return nil, errors.New("invalid type for backend : " + v.Type)
		}
	}

	return f, nil
}

// RESTOptions reads the options of a rest backend. A token wins over a
// cookie, which wins over user and password.
func RESTOptions(options ty.MI) rest.Options {
	opts := rest.Options{
		URL:             options.GetString("url"),
		Headers:         options.GetMS("headers").ResolveVariables(),
		TailFormat:      options.GetString("tailFormat"),
		TimestampColumn: options.GetString("timestampColumn"),
	}
	switch {
	case options.GetString("token") != "":
		opts.Auth = lhttp.HeaderAuth{Headers: ty.MS{"Authorization": "Bearer " + options.GetString("token")}}
	case options.GetString("cookie") != "":
		opts.Auth = lhttp.CookieAuth{Cookie: options.GetString("cookie")}
	case options.GetString("user") != "":
		opts.Auth = lhttp.BasicAuth{User: options.GetString("user"), Password: options.GetString("password")}
	}
	return opts
}
