package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/llmshape/internal/api"
	"github.com/jackzampolin/llmshape/internal/llmcall"
	"github.com/jackzampolin/llmshape/internal/metrics"
	"github.com/jackzampolin/llmshape/internal/svcctx"
)

// LLMCallsResponse contains a list of LLM calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls" yaml:"calls"`
	Total int            `json:"total" yaml:"total"`
}

// LLMCallResponse contains a single LLM call.
type LLMCallResponse struct {
	Call  *llmcall.Call `json:"call,omitempty" yaml:"call,omitempty"`
	Error string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// LLMCallCountsResponse contains prompt key counts.
type LLMCallCountsResponse struct {
	Counts map[string]int `json:"counts" yaml:"counts"`
}

// LLMCallStatsResponse contains history statistics, either overall or grouped.
type LLMCallStatsResponse struct {
	Stats   *metrics.DetailedStats            `json:"stats,omitempty" yaml:"stats,omitempty"`
	GroupBy string                            `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Groups  map[string]*metrics.DetailedStats `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// parseFilter reads the shared history filter query parameters.
func parseFilter(q url.Values) (llmcall.QueryFilter, error) {
	filter := llmcall.QueryFilter{
		PromptKey:   q.Get("prompt_key"),
		Backend:     q.Get("backend"),
		Model:       q.Get("model"),
		Mode:        q.Get("mode"),
		FailureKind: q.Get("failure_kind"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid success filter: %q must be true or false", v)
		}
		filter.Success = &b
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %q must be an integer", v)
		}
		filter.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid offset: %q must be an integer", v)
		}
		filter.Offset = offset
	}

	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid after time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v)
		}
		filter.After = &t
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid before time: %q must be RFC3339 format (e.g., 2024-01-15T00:00:00Z)", v)
		}
		filter.Before = &t
	}

	return filter, nil
}

// filterFlags holds the CLI flags shared by list and stats.
type filterFlags struct {
	promptKey, backend, model, mode, failureKind string
	successOnly, failedOnly                      bool
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.promptKey, "prompt-key", "", "Filter by prompt key")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Filter by backend")
	cmd.Flags().StringVar(&f.model, "model", "", "Filter by model")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Filter by extraction mode")
	cmd.Flags().StringVar(&f.failureKind, "kind", "", "Filter by failure kind (connectivity, backend, parse, validation)")
	cmd.Flags().BoolVar(&f.successOnly, "success", false, "Only successful calls")
	cmd.Flags().BoolVar(&f.failedOnly, "failed", false, "Only failed calls")
}

func (f *filterFlags) values() url.Values {
	params := url.Values{}
	set := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}
	set("prompt_key", f.promptKey)
	set("backend", f.backend)
	set("model", f.model)
	set("mode", f.mode)
	set("failure_kind", f.failureKind)
	if f.successOnly {
		params.Set("success", "true")
	}
	if f.failedOnly {
		params.Set("success", "false")
	}
	return params
}

func withQuery(path string, params url.Values) string {
	if len(params) > 0 {
		return path + "?" + params.Encode()
	}
	return path
}

// ListLLMCallsEndpoint handles GET /api/llmcalls.
type ListLLMCallsEndpoint struct{}

func (e *ListLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls", e.handler
}

func (e *ListLLMCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List LLM calls
//	@Description	Get extraction call history with optional filters, newest first
//	@Tags			llmcalls
//	@Produce		json
//	@Param			prompt_key		query		string	false	"Filter by prompt key"
//	@Param			backend			query		string	false	"Filter by backend"
//	@Param			model			query		string	false	"Filter by model"
//	@Param			mode			query		string	false	"Filter by extraction mode"
//	@Param			failure_kind	query		string	false	"Filter by failure kind"
//	@Param			success			query		bool	false	"Filter by success status (true or false)"
//	@Param			limit			query		int		false	"Max results (default 100)"
//	@Param			offset			query		int		false	"Result offset"
//	@Param			after			query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Param			before			query		string	false	"Filter calls before this RFC3339 timestamp"
//	@Success		200				{object}	LLMCallsResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		503				{object}	ErrorResponse
//	@Failure		500				{object}	ErrorResponse
//	@Router			/api/llmcalls [get]
func (e *ListLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LLMCallsResponse{
		Calls: calls,
		Total: len(calls),
	})
}

func (e *ListLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filters filterFlags
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List LLM calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			params := filters.values()
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				params.Set("offset", strconv.Itoa(offset))
			}

			var resp LLMCallsResponse
			if err := client.Get(cmd.Context(), withQuery("/api/llmcalls", params), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset")
	return cmd
}

// GetLLMCallEndpoint handles GET /api/llmcalls/{id}.
type GetLLMCallEndpoint struct{}

func (e *GetLLMCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/{id}", e.handler
}

func (e *GetLLMCallEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get an LLM call
//	@Description	Get a single recorded call by ID
//	@Tags			llmcalls
//	@Produce		json
//	@Param			id	path		string	true	"LLM call ID"
//	@Success		200	{object}	LLMCallResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/llmcalls/{id} [get]
func (e *GetLLMCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}

	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	call, err := store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if call == nil {
		writeError(w, http.StatusNotFound, "LLM call not found")
		return
	}

	writeJSON(w, http.StatusOK, LLMCallResponse{Call: call})
}

func (e *GetLLMCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an LLM call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LLMCallResponse
			if err := client.Get(cmd.Context(), "/api/llmcalls/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp.Call)
		},
	}
}

// LLMCallCountsEndpoint handles GET /api/llmcalls/counts.
type LLMCallCountsEndpoint struct{}

func (e *LLMCallCountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/counts", e.handler
}

func (e *LLMCallCountsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get LLM call counts by prompt key
//	@Description	Count of recorded calls grouped by prompt key
//	@Tags			llmcalls
//	@Produce		json
//	@Success		200	{object}	LLMCallCountsResponse
//	@Failure		503	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/llmcalls/counts [get]
func (e *LLMCallCountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	counts, err := store.CountByPromptKey(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LLMCallCountsResponse{Counts: counts})
}

func (e *LLMCallCountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Get LLM call counts by prompt key",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LLMCallCountsResponse
			if err := client.Get(cmd.Context(), "/api/llmcalls/counts", &resp); err != nil {
				return err
			}
			return api.Output(resp.Counts)
		},
	}
}

// LLMCallStatsEndpoint handles GET /api/llmcalls/stats.
type LLMCallStatsEndpoint struct{}

func (e *LLMCallStatsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/stats", e.handler
}

func (e *LLMCallStatsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get LLM call statistics
//	@Description	Success rate, failure kinds, latency percentiles and token totals over recorded calls
//	@Tags			llmcalls
//	@Produce		json
//	@Param			group_by		query		string	false	"Group by backend or prompt_key"
//	@Param			prompt_key		query		string	false	"Filter by prompt key"
//	@Param			backend			query		string	false	"Filter by backend"
//	@Param			model			query		string	false	"Filter by model"
//	@Param			mode			query		string	false	"Filter by extraction mode"
//	@Param			after			query		string	false	"Only calls after this RFC3339 timestamp"
//	@Param			before			query		string	false	"Only calls before this RFC3339 timestamp"
//	@Success		200				{object}	LLMCallStatsResponse
//	@Failure		400				{object}	ErrorResponse
//	@Failure		503				{object}	ErrorResponse
//	@Failure		500				{object}	ErrorResponse
//	@Router			/api/llmcalls/stats [get]
func (e *LLMCallStatsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := svcctx.MetricsQueryFrom(r.Context())
	if query == nil {
		writeError(w, http.StatusServiceUnavailable, "call history is disabled")
		return
	}

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := LLMCallStatsResponse{GroupBy: r.URL.Query().Get("group_by")}
	switch resp.GroupBy {
	case "":
		resp.Stats, err = query.GetDetailedStats(r.Context(), filter)
	case "backend":
		resp.Groups, err = query.StatsByBackend(r.Context(), filter)
	case "prompt_key":
		resp.Groups, err = query.StatsByPromptKey(r.Context(), filter)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid group_by: %q must be backend or prompt_key", resp.GroupBy))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *LLMCallStatsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filters filterFlags
	var groupBy string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Get LLM call statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			params := filters.values()
			if groupBy != "" {
				params.Set("group_by", groupBy)
			}

			var resp LLMCallStatsResponse
			if err := client.Get(cmd.Context(), withQuery("/api/llmcalls/stats", params), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Group by backend or prompt_key")
	return cmd
}
