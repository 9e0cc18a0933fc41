package http

import (
	"errors"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/format"
	"github.com/fyrsmithlabs/browserlog/internal/retry"
)

// ExtractRequest is the request body for POST /api/v1/extract. Unset
// fields keep the server's configured values. Filters replaces the
// configured filters; in it, filters.domains keeps network entries whose
// URL contains one of the patterns, case-insensitive, with * matching any
// run of characters.
type ExtractRequest struct {
	Window         string       `json:"window,omitempty"`
	MaxEntries     *int         `json:"maxEntries,omitempty"`
	IncludeNetwork *bool        `json:"includeNetwork,omitempty"`
	IncludeConsole *bool        `json:"includeConsole,omitempty"`
	IncludeLog     *bool        `json:"includeLog,omitempty"`
	Filters        *filter.Spec `json:"filters,omitempty"`
	Format         *format.Spec `json:"format,omitempty"`
}

func (r ExtractRequest) apply(base extract.Options) (extract.Options, error) {
	window, err := extract.ParseWindow(r.Window)
	if err != nil {
		return base, err
	}
	return extract.Overrides{
		Window:         window,
		MaxEntries:     r.MaxEntries,
		IncludeNetwork: r.IncludeNetwork,
		IncludeConsole: r.IncludeConsole,
		IncludeLog:     r.IncludeLog,
		Filters:        r.Filters,
		Format:         r.Format,
	}.Apply(base)
}

// ExtractResponse is the response body for POST /api/v1/extract. Error is
// set when the extraction stopped early and Result holds what was collected.
type ExtractResponse struct {
	*extract.Result
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the body of a failed extraction.
type ErrorResponse struct {
	Error          string                   `json:"error"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// ClassifyRequest is the request body for POST /api/v1/classify.
type ClassifyRequest struct {
	Message string `json:"message"`
}

// ClassifyResponse is the response body for POST /api/v1/classify.
type ClassifyResponse struct {
	Known          bool                     `json:"known"`
	Suppressed     bool                     `json:"suppressed"`
	Classification *classify.Classification `json:"classification,omitempty"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func isUpstream(err error) bool {
	var exhausted *retry.ExhaustedError
	return errors.Is(err, cdp.ErrDebuggerNotRunning) ||
		errors.Is(err, cdp.ErrNoDebuggableTarget) ||
		errors.Is(err, cdp.ErrDomainEnable) ||
		errors.As(err, &exhausted)
}
