// Package config loads backends, saved views and explorer defaults from a
// YAML or JSON file.
//
//	backends:
//	  prod:
//	    type: rest
//	    options: {url: "${PARSEABLE_URL}", user: admin, password: "${PARSEABLE_PASSWORD:-admin}"}
//	views:
//	  errors:
//	    backend: prod
//	    stream: app-logs
//	    filters: ["level=error"]
//	    last: 1h
//	explorer:
//	  perPage: 100
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/filter"
	"github.com/bascanada/logexplorer/pkg/livetail"
	"github.com/bascanada/logexplorer/pkg/timeslot"
	"github.com/bascanada/logexplorer/pkg/ty"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sentinel errors returned by Load so callers can detect exact failure modes
// using errors.Is().
var (
	ErrConfigParse  = errors.New("invalid config content")
	ErrNoBackends   = errors.New("no backends found in config file")
	ErrViewNotFound = errors.New("view not found")
	ErrNotFound     = errors.New("config file not found")
	ErrNoTarget     = errors.New("no view or backend selected")
)

const (
	// EnvConfigPath is the environment variable used to override the config path
	EnvConfigPath = "LOGEXPLORER_CONFIG"

	// DefaultConfigDir is the directory under the user's home where the config
	// file is expected when no explicit path or env var is provided.
	DefaultConfigDir = ".logexplorer"

	// DefaultConfigFile is the config filename to look for in the default dir.
	DefaultConfigFile = "config.yaml"
)

// Backend types.
const (
	TypeREST     = "rest"
	TypePostgres = "postgres"
)

type Backend struct {
	Type    string `json:"type" yaml:"type"`
	Options ty.MI  `json:"options" yaml:"options"`
}

type Backends map[string]Backend

// Explorer holds the tunables of the engine. Unset members keep the
// built-in defaults; a view overrides only what it declares.
type Explorer struct {
	PerPage         ty.Opt[int]    `json:"perPage" yaml:"perPage,omitempty"`
	LoadLimit       ty.Opt[int]    `json:"loadLimit" yaml:"loadLimit,omitempty"`
	Ceiling         ty.Opt[int64]  `json:"ceiling" yaml:"ceiling,omitempty"`
	Gaps            ty.Opt[[]int]  `json:"gaps" yaml:"gaps,omitempty"`
	SlotCap         ty.Opt[int]    `json:"slotCap" yaml:"slotCap,omitempty"`
	TailCapacity    ty.Opt[int]    `json:"tailCapacity" yaml:"tailCapacity,omitempty"`
	Refresh         ty.Opt[string] `json:"refresh" yaml:"refresh,omitempty"`
	TimestampColumn ty.Opt[string] `json:"timestampColumn" yaml:"timestampColumn,omitempty"`
	AutoClear       ty.Opt[bool]   `json:"autoClearOnEmpty" yaml:"autoClearOnEmpty,omitempty"`
}

// Merge overrides e with what other sets.
func (e *Explorer) Merge(other Explorer) {
	e.PerPage.Merge(&other.PerPage)
	e.LoadLimit.Merge(&other.LoadLimit)
	e.Ceiling.Merge(&other.Ceiling)
	e.Gaps.Merge(&other.Gaps)
	e.SlotCap.Merge(&other.SlotCap)
	e.TailCapacity.Merge(&other.TailCapacity)
	e.Refresh.Merge(&other.Refresh)
	e.TimestampColumn.Merge(&other.TimestampColumn)
	e.AutoClear.Merge(&other.AutoClear)
}

// ControllerOptions maps the settings onto the page controller.
func (e Explorer) ControllerOptions() explorer.Options {
	return explorer.Options{
		PerPage:         e.PerPage.OrElse(explorer.DefaultPerPage),
		LoadLimit:       e.LoadLimit.OrElse(explorer.DefaultLoadLimit),
		TimestampColumn: e.TimestampColumn.OrElse(""),
	}
}

// LocatorOptions maps the settings onto the time-slot locator.
func (e Explorer) LocatorOptions() timeslot.Options {
	opts := timeslot.Options{
		Ceiling: e.Ceiling.OrElse(timeslot.DefaultCeiling),
		SlotCap: e.SlotCap.OrElse(timeslot.DefaultSlotCap),
	}
	for _, m := range e.Gaps.OrElse(nil) {
		opts.Gaps = append(opts.Gaps, time.Duration(m)*time.Minute)
	}
	return opts
}

// TailOptions maps the settings onto a live-tail session.
func (e Explorer) TailOptions() livetail.Options {
	return livetail.Options{Capacity: e.TailCapacity.OrElse(livetail.DefaultCapacity)}
}

// BuilderOptions maps the settings onto the filter builder.
func (e Explorer) BuilderOptions() filter.Options {
	var opts filter.Options
	if e.AutoClear.Set && e.AutoClear.Valid {
		v := e.AutoClear.Value
		opts.AutoClearOnEmpty = &v
	}
	return opts
}

// RefreshInterval is zero when refresh is off.
func (e Explorer) RefreshInterval() (time.Duration, error) {
	s := e.Refresh.OrElse("")
	if s == "" || s == "off" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("refresh interval: %w", err)
	}
	return d, nil
}

// View is a saved exploration: where to look and what to apply.
type View struct {
	Backend string   `json:"backend" yaml:"backend"`
	Stream  string   `json:"stream" yaml:"stream"`
	Filters []string `json:"filters,omitempty" yaml:"filters,omitempty"`
	SQL     string   `json:"sql,omitempty" yaml:"sql,omitempty"`
	// Last is a duration back from now, like 15m or 24h.
	Last     string   `json:"last,omitempty" yaml:"last,omitempty"`
	Explorer Explorer `json:"explorer" yaml:"explorer,omitempty"`
}

type Views map[string]View

type Config struct {
	Backends Backends `json:"backends" yaml:"backends"`
	Views    Views    `json:"views" yaml:"views"`
	Explorer Explorer `json:"explorer" yaml:"explorer,omitempty"`
}

// Path resolves the config file: the explicit path, then LOGEXPLORER_CONFIG,
// then ~/.logexplorer/config.yaml when it exists.
func Path(configPath string) (string, error) {
	if strings.TrimSpace(configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv(EnvConfigPath)); envPath != "" {
			configPath = envPath
		} else if home, err := os.UserHomeDir(); err == nil {
			defaultPath := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
			if _, err := os.Stat(defaultPath); err == nil {
				configPath = defaultPath
			}
		}
	}
	if strings.TrimSpace(configPath) == "" {
		return "", ErrNotFound
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return "", fmt.Errorf("%w at path: %s", ErrNotFound, configPath)
	}
	return configPath, nil
}

// Load reads and validates the config file found by Path. String options
// of backends have ${VAR} references expanded from the environment.
func Load(configPath string) (*Config, error) {
	configPath, err := Path(configPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data, filepath.Ext(configPath))
}

// Parse decodes data as JSON for ".json", YAML for ".yaml"/".yml", and tries
// both otherwise.
func Parse(data []byte, ext string) (*Config, error) {
	var config Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("%w: parsing JSON: %v", ErrConfigParse, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("%w: parsing YAML: %v", ErrConfigParse, err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			config = Config{}
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("%w: unsupported or invalid config format", ErrConfigParse)
			}
		}
	}

	if len(config.Backends) == 0 {
		return nil, ErrNoBackends
	}
	for name, b := range config.Backends {
		b.Options = b.Options.ResolveVariables()
		config.Backends[name] = b
	}
	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// validate reports every missing required option at once.
func validate(c *Config) error {
	problems := []string{}
	for name, b := range c.Backends {
		switch strings.ToLower(b.Type) {
		case TypeREST:
			if b.Options.GetString("url") == "" {
				problems = append(problems, fmt.Sprintf("backend '%s' (rest) missing required option 'url'", name))
			}
		case TypePostgres:
			if b.Options.GetString("dsn") == "" {
				problems = append(problems, fmt.Sprintf("backend '%s' (postgres) missing required option 'dsn'", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("backend '%s' has unknown type '%s'", name, b.Type))
		}
	}
	for name, v := range c.Views {
		if _, ok := c.Backends[v.Backend]; !ok {
			problems = append(problems, fmt.Sprintf("view '%s' uses unknown backend '%s'", name, v.Backend))
		}
		if v.Last != "" {
			if _, err := time.ParseDuration(v.Last); err != nil {
				problems = append(problems, fmt.Sprintf("view '%s' has invalid last '%s'", name, v.Last))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// View returns the named view with its explorer settings merged over the
// global ones.
func (c Config) View(name string) (View, error) {
	v, ok := c.Views[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrViewNotFound, name)
	}
	merged := c.Explorer
	merged.Merge(v.Explorer)
	v.Explorer = merged
	return v, nil
}

// Resolve picks the named view, or an ad hoc view over backendName with
// the global explorer settings. A set backendName or stream overrides the
// view's own.
func (c Config) Resolve(name, backendName, stream string) (View, error) {
	var v View
	switch {
	case name != "":
		var err error
		if v, err = c.View(name); err != nil {
			return View{}, err
		}
	case backendName != "":
		v = View{Explorer: c.Explorer}
	default:
		return View{}, ErrNoTarget
	}
	if backendName != "" {
		v.Backend = backendName
	}
	if stream != "" {
		v.Stream = stream
	}
	if v.Stream == "" {
		return View{}, backend.ErrUnknownStream
	}
	return v, nil
}

// ViewNames lists the views, sorted.
func (c Config) ViewNames() []string {
	names := make([]string, 0, len(c.Views))
	for n := range c.Views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Window resolves an explicit range from from, to and last, falling back
// to the view's own range when all three are empty.
func (v View) Window(from, to, last string, now time.Time) (time.Time, time.Time, error) {
	if from == "" && to == "" && last == "" {
		start, end := v.Range(now)
		return start, end, nil
	}
	return ty.ResolveRange(from, to, last, now)
}

// Range is the time window of the view ending at now.
func (v View) Range(now time.Time) (time.Time, time.Time) {
	d := time.Hour
	if v.Last != "" {
		if parsed, err := time.ParseDuration(v.Last); err == nil {
			d = parsed
		}
	}
	return now.Add(-d), now
}

// Save writes c as YAML to path.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
