package main

import (
	"encoding/json"
	"net/http"

	"github.com/vllora/gateway/executor"
	"github.com/vllora/gateway/gwerrors"
	"github.com/vllora/gateway/gwmodel"
	"github.com/vllora/gateway/responses"
)

// errorBody is the client-facing JSON shape for every failure, per spec §7.
type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// writeError maps err onto the HTTP status and body spec §7 prescribes.
// Non-gwerrors.Error failures (malformed JSON, for instance) are treated as
// a 400 bad request rather than leaking a 500 for caller mistakes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	code := string(gwerrors.KindBadRequest)
	if gwErr, ok := gwerrors.As(err); ok {
		status = gwErr.HTTPStatus()
		code = string(gwErr.Kind)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: true, Message: err.Error(), Code: code})
}

func requestHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	return headers
}

// chatCompletionsHandler serves POST /v1/chat/completions (spec §6). This
// module's scope is the request-execution pipeline, not the HTTP server
// framework (spec §1 "out of scope"): this handler is a thin, non-streaming
// JSON binding over executor.Executor.Execute, not the SSE-framed gateway
// surface a full deployment would front it with.
func chatCompletionsHandler(exec *executor.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req gwmodel.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, gwerrors.Wrap(gwerrors.KindBadRequest, "decode request body", err))
			return
		}
		resp, err := exec.Execute(r.Context(), &req, requestHeaders(r))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// responsesHandler serves POST /v1/responses by translating the turn-based
// request into a ChatCompletionRequest and the result back, so it shares the
// same executor and provider adapters as chat completions (spec §6).
func responsesHandler(exec *executor.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req responses.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, gwerrors.Wrap(gwerrors.KindBadRequest, "decode request body", err))
			return
		}
		ccReq, err := responses.ToChatCompletion(req)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := exec.Execute(r.Context(), ccReq, requestHeaders(r))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(responses.FromChatCompletion(resp))
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
