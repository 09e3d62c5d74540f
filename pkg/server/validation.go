package server

import (
	"fmt"
	"strings"
)

func validateQueryRequest(req *QueryRequest) error {
	if err := validateTarget(req.Target); err != nil {
		return err
	}
	if req.Page < 0 {
		return fmt.Errorf("page must not be negative")
	}
	if req.PerPage < 0 {
		return fmt.Errorf("perPage must not be negative")
	}
	if req.SQL != "" && len(req.Filters) > 0 {
		return fmt.Errorf("sql and filters are exclusive")
	}
	return validateWindow(req.Window)
}

func validateSlotsRequest(req *SlotsRequest) error {
	if err := validateTarget(req.Target); err != nil {
		return err
	}
	if req.More < 0 {
		return fmt.Errorf("more must not be negative")
	}
	return validateWindow(req.Window)
}

func validateTarget(t Target) error {
	if strings.TrimSpace(t.View) == "" && strings.TrimSpace(t.Backend) == "" {
		return fmt.Errorf("view or backend is required")
	}
	return nil
}

func validateWindow(w Window) error {
	if w.Last != "" && w.From != "" {
		return fmt.Errorf("last and from are exclusive")
	}
	return nil
}
