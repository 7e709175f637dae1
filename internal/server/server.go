package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	eventbus "github.com/hanpama/patchql/internal/eventbus"
	events "github.com/hanpama/patchql/internal/events"
	executor "github.com/hanpama/patchql/internal/executor"
	language "github.com/hanpama/patchql/internal/language"
	reqid "github.com/hanpama/patchql/internal/reqid"
	schema "github.com/hanpama/patchql/internal/schema"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the executor, and formats responses per GraphQL
// spec; responses carrying patches stream as multipart/mixed when the client
// accepts it.
type Handler struct {
	exec *executor.Executor
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// IncrementalDelivery enables @defer/@stream handling. When false the
	// directives are no-ops and every response is a single JSON body.
	IncrementalDelivery bool
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithIncrementalDelivery(enabled bool) Option {
	return func(o *Options) { o.IncrementalDelivery = enabled }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, IncrementalDelivery: true}
	for _, f := range opts {
		f(&op)
	}
	exec := executor.NewExecutor(runtime, sch, executor.WithDeferredDelivery(op.IncrementalDelivery))
	return &Handler{exec: exec, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(nil, &language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(nil, berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		// Batched requests always drain into single JSON bodies.
		op := make([]any, len(batch))
		for i := range batch {
			res := h.executeOne(ctx, batch[i])
			op[i] = drainToSpecResult(ctx, res)
		}
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	res := h.executeOne(ctx, req)
	if res.result != nil && res.result.Patches != nil && acceptsMultipart(r.Header.Get("Accept")) {
		h.writeMultipart(ctx, w, res.result)
		return
	}
	writeJSON(w, status, drainToSpecResult(ctx, res), h.opt.Pretty)
}

// executed pairs a full execution result with a pre-formatted error
// response for requests that never reached the executor.
type executed struct {
	result *executor.ExecutionResult
	errRes *specResult
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) executed {
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		if ge, ok := err.(*language.Error); ok {
			r := errorResponse(nil, ge)
			return executed{errRes: &r}
		}
		r := errorResponse(nil, &language.Error{Message: err.Error()})
		return executed{errRes: &r}
	}

	opDef := doc.Operations.ForName(req.OperationName)
	if opDef == nil && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	opType := ""
	if opDef != nil {
		opType = string(opDef.Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})
	result := h.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, nil)
	errs := make([]error, len(result.Errors))
	for i := range result.Errors {
		errs[i] = result.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Incremental:   result.Patches != nil,
		Duration:      time.Since(start),
	})
	return executed{result: result}
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
		}

		// Try array (batch)
		var arr []GraphQLRequest
		if len(body) > 0 && body[0] == '[' {
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message    string         `json:"message"`
	Locations  []specLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type specPatch struct {
	Label  string      `json:"label"`
	Path   []any       `json:"path"`
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

type specResult struct {
	Data        any         `json:"data"`
	Errors      []specError `json:"errors,omitempty"`
	Incremental []specPatch `json:"incremental,omitempty"`
}

func errorResponse(data any, err *language.Error) specResult {
	se := specError{Message: err.Message}
	for _, loc := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
	}
	return specResult{Data: data, Errors: []specError{se}}
}

func toSpecErrors(errs []executor.GraphQLError) []specError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]specError, len(errs))
	for i, e := range errs {
		se := specError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			se.Locations = append(se.Locations, specLocation{Line: loc.Line, Column: loc.Column})
		}
		if len(e.Path) > 0 {
			se.Path = e.Path.Segments()
		}
		out[i] = se
	}
	return out
}

func toSpecPatch(p executor.Patch) specPatch {
	return specPatch{
		Label:  p.Label,
		Path:   p.Path.Segments(),
		Data:   p.Data,
		Errors: toSpecErrors(p.Errors),
	}
}

// drainToSpecResult collapses an execution into a single JSON document,
// draining any patches into the incremental list.
func drainToSpecResult(ctx context.Context, res executed) specResult {
	if res.errRes != nil {
		return *res.errRes
	}
	out := specResult{Data: res.result.Data, Errors: toSpecErrors(res.result.Errors)}
	if res.result.Patches != nil {
		start := time.Now()
		count := 0
		for {
			p, ok := res.result.Patches.Next(ctx)
			if !ok {
				break
			}
			count++
			publishPatch(ctx, p, start)
			out.Incremental = append(out.Incremental, toSpecPatch(p))
		}
		eventbus.Publish(ctx, events.PatchesFinish{Count: count, Duration: time.Since(start)})
	}
	return out
}

// writeMultipart streams the initial result and each patch as its own
// multipart/mixed part, flushing between parts.
func (h *Handler) writeMultipart(ctx context.Context, w http.ResponseWriter, result *executor.ExecutionResult) {
	const boundary = "graphql"
	w.Header().Set("Content-Type", `multipart/mixed; boundary="`+boundary+`"`)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	writePart := func(v any) {
		io.WriteString(w, "\r\n--"+boundary+"\r\nContent-Type: application/json\r\n\r\n")
		b, _ := json.Marshal(v)
		w.Write(b)
		if flusher != nil {
			flusher.Flush()
		}
	}

	initial := struct {
		Data    any         `json:"data"`
		Errors  []specError `json:"errors,omitempty"`
		HasNext bool        `json:"hasNext"`
	}{Data: result.Data, Errors: toSpecErrors(result.Errors), HasNext: true}
	writePart(initial)

	start := time.Now()
	count := 0
	for {
		p, ok := result.Patches.Next(ctx)
		if !ok {
			break
		}
		count++
		publishPatch(ctx, p, start)
		part := struct {
			Label   string      `json:"label"`
			Path    []any       `json:"path"`
			Data    any         `json:"data"`
			Errors  []specError `json:"errors,omitempty"`
			HasNext bool        `json:"hasNext"`
		}{Label: p.Label, Path: p.Path.Segments(), Data: p.Data, Errors: toSpecErrors(p.Errors), HasNext: true}
		writePart(part)
	}
	writePart(struct {
		HasNext bool `json:"hasNext"`
	}{HasNext: false})
	io.WriteString(w, "\r\n--"+boundary+"--\r\n")
	if flusher != nil {
		flusher.Flush()
	}
	eventbus.Publish(ctx, events.PatchesFinish{Count: count, Duration: time.Since(start)})
}

func publishPatch(ctx context.Context, p executor.Patch, start time.Time) {
	eventbus.Publish(ctx, events.PatchEmit{
		Label:      p.Label,
		Path:       p.Path.Key(),
		ErrorCount: len(p.Errors),
		Duration:   time.Since(start),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsMultipart(accept string) bool {
	for _, p := range strings.Split(accept, ",") {
		if strings.HasPrefix(strings.TrimSpace(p), "multipart/mixed") {
			return true
		}
	}
	return false
}
