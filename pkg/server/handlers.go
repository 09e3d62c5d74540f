package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bascanada/logexplorer/pkg/backend"
	"github.com/bascanada/logexplorer/pkg/config"
	"github.com/bascanada/logexplorer/pkg/explorer"
	"github.com/bascanada/logexplorer/pkg/query"
	"github.com/bascanada/logexplorer/pkg/timeslot"
)

// Target selects what a request explores: a saved view, an ad hoc backend
// and stream, or a view with its backend or stream overridden.
type Target struct {
	View    string `json:"view,omitempty"`
	Backend string `json:"backend,omitempty"`
	Stream  string `json:"stream,omitempty"`
}

// Window bounds a request in time. Empty members fall back to the view.
type Window struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Last string `json:"last,omitempty"`
}

// Base request structure for query endpoints
type QueryRequest struct {
	Target
	Window
	// Filters are ANDed with the view's own.
	Filters []string `json:"filters,omitempty"`
	// SQL replaces the generated query; filters are ignored.
	SQL     string `json:"sql,omitempty"`
	Page    int    `json:"page,omitempty"`
	PerPage int    `json:"perPage,omitempty"`
	// Sort is column or column:asc|desc.
	Sort string `json:"sort,omitempty"`
}

// Response for /query endpoint
type QueryResponse struct {
	Rows       []backend.Row `json:"rows"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
	TotalPages int           `json:"totalPages"`
	TotalCount int64         `json:"totalCount"`
	Where      string        `json:"where,omitempty"`
	Meta       QueryMetadata `json:"meta"`
}

// Response for /fields endpoint
type FieldsResponse struct {
	Fields []backend.Field `json:"fields"`
	// Values are the distinct values seen in the loaded chunk.
	Values map[string][]string `json:"values,omitempty"`
	Meta   QueryMetadata       `json:"meta"`
}

// SlotsRequest asks for the time slots of a window.
type SlotsRequest struct {
	Target
	Window
	Filters []string `json:"filters,omitempty"`
	// More extends the slot list this many times.
	More int `json:"more,omitempty"`
}

// Response for /slots endpoint
type SlotsResponse struct {
	Gap       string        `json:"gap"`
	Exhausted bool          `json:"exhausted"`
	Slots     []SlotInfo    `json:"slots"`
	Meta      QueryMetadata `json:"meta"`
}

type SlotInfo struct {
	ID    int       `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Response for /views endpoint
type ViewsResponse struct {
	Views []ViewInfo `json:"views"`
}

type ViewInfo struct {
	Name    string   `json:"name"`
	Backend string   `json:"backend"`
	Stream  string   `json:"stream"`
	Filters []string `json:"filters,omitempty"`
	SQL     string   `json:"sql,omitempty"`
	Last    string   `json:"last,omitempty"`
}

// Metadata about query execution
type QueryMetadata struct {
	QueryTime   string `json:"queryTime"`
	ResultCount int    `json:"resultCount"`
	ViewUsed    string `json:"viewUsed,omitempty"`
	Backend     string `json:"backend"`
	Stream      string `json:"stream"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) viewsHandler(w http.ResponseWriter, r *http.Request) {
	cfg, _ := s.snapshot()
	resp := ViewsResponse{Views: make([]ViewInfo, 0, len(cfg.Views))}
	for _, name := range cfg.ViewNames() {
		resp.Views = append(resp.Views, viewInfo(name, cfg.Views[name]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	cfg, _ := s.snapshot()
	name := r.PathValue("name")
	v, err := cfg.View(name)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewInfo(name, v))
}

func viewInfo(name string, v config.View) ViewInfo {
	return ViewInfo{Name: name, Backend: v.Backend, Stream: v.Stream, Filters: v.Filters, SQL: v.SQL, Last: v.Last}
}

func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "Invalid request body")
		return
	}
	if err := validateQueryRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	startTime := time.Now()
	res, ctrl, err := s.load(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	st := ctrl.State()
	resp := QueryResponse{
		Rows:       st.Window.Data,
		Page:       st.Window.Page,
		PerPage:    st.Window.PerPage,
		TotalPages: st.Window.TotalPages,
		TotalCount: st.Window.TotalCount,
		Meta:       res.metadata(startTime, len(st.Window.Data)),
	}
	if resp.Rows == nil {
		resp.Rows = []backend.Row{}
	}
	if st.Applied != nil {
		resp.Where = st.Applied.Where
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fieldsHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "Invalid request body")
		return
	}
	if err := validateQueryRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	startTime := time.Now()
	res, ctrl, err := s.load(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	schema := ctrl.State().Schema
	values := ctrl.Distinct(schema.Names()...)
	s.writeJSON(w, http.StatusOK, FieldsResponse{
		Fields: schema.Fields,
		Values: values,
		Meta:   res.metadata(startTime, len(schema.Fields)),
	})
}

// load runs req through a page controller and returns it on the requested
// page.
func (s *Server) load(ctx context.Context, req QueryRequest) (*resolved, *explorer.Controller, error) {
	res, err := s.resolve(req.Target)
	if err != nil {
		return nil, nil, err
	}

	opts := res.view.Explorer.ControllerOptions()
	if req.PerPage > 0 {
		opts.PerPage = req.PerPage
	}
	ctrl := explorer.NewController(res.backend, opts)
	ctrl.SetStream(res.view.Stream)

	start, end, err := res.view.Window(req.From, req.To, req.Last, s.now())
	if err != nil {
		return nil, nil, err
	}
	ctrl.SetTimeRange(start, end)

	sql := req.SQL
	if sql == "" {
		sql = res.view.SQL
	}
	if sql != "" {
		ctrl.SetSQL(sql)
	} else {
		exprs := append(append([]string{}, res.view.Filters...), req.Filters...)
		applied, err := query.Compile(nil, res.view.Explorer.BuilderOptions(), exprs...)
		if err != nil {
			return nil, nil, err
		}
		ctrl.ApplyFilter(applied)
	}

	if req.Sort != "" {
		sort, err := explorer.ParseSort(req.Sort)
		if err != nil {
			return nil, nil, err
		}
		if err := ctrl.Sort(ctx, sort.Column, sort.Order); err != nil {
			return nil, nil, err
		}
	}

	if err := ctrl.Load(ctx); err != nil {
		return nil, nil, err
	}
	if req.Page > 1 {
		if err := ctrl.GoToPage(ctx, req.Page); err != nil {
			return nil, nil, err
		}
	}
	if st := ctrl.State(); st.Status == explorer.Errored {
		return nil, nil, st.Err
	}
	return res, ctrl, nil
}

func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	var req SlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeInvalidQuery, "Invalid request body")
		return
	}
	if err := validateSlotsRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		return
	}

	startTime := time.Now()
	res, err := s.resolve(req.Target)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	start, end, err := res.view.Window(req.From, req.To, req.Last, s.now())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	exprs := append(append([]string{}, res.view.Filters...), req.Filters...)
	applied, err := query.Compile(nil, res.view.Explorer.BuilderOptions(), exprs...)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	rng := timeslot.Range{Stream: res.view.Stream, Start: start, End: end}
	if applied != nil {
		rng.Filter = applied.Where
	}

	l := timeslot.NewLocator(res.backend, res.view.Explorer.LocatorOptions())
	l.Reset(rng)
	if _, err := l.Locate(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	for i := 0; i < req.More && !l.State().Exhausted; i++ {
		l.LoadMore()
	}

	st := l.State()
	resp := SlotsResponse{
		Gap:       st.Gap.String(),
		Exhausted: st.Exhausted,
		Slots:     make([]SlotInfo, 0, len(st.Slots)),
		Meta:      res.metadata(startTime, len(st.Slots)),
	}
	for _, slot := range st.Slots {
		resp.Slots = append(resp.Slots, SlotInfo{ID: slot.ID, Start: slot.StartTime(), End: slot.EndTime})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (r *resolved) metadata(start time.Time, count int) QueryMetadata {
	return QueryMetadata{
		QueryTime:   time.Since(start).String(),
		ResultCount: count,
		ViewUsed:    r.name,
		Backend:     r.view.Backend,
		Stream:      r.view.Stream,
	}
}
