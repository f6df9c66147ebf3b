package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kazz187/urgentsync/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	status   int
	response any
	err      error
}

func contextWithResponseReceiver(ctx context.Context, rr *responseReceiver) context.Context {
	return context.WithValue(ctx, responseReceiverKey{}, rr)
}

func responseReceiverFromContext(ctx context.Context) *responseReceiver {
	if rr, ok := ctx.Value(responseReceiverKey{}).(*responseReceiver); ok {
		return rr
	}
	return nil
}

// SetJSONResponse records the body written with 200 once the handler returns.
func SetJSONResponse(ctx context.Context, response any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.response = response
	}
}

// SetJSONResponseWithStatus is SetJSONResponse with an explicit status code.
func SetJSONResponseWithStatus(ctx context.Context, status int, response any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.status = status
		rr.response = response
	}
}

func SetJSONError(ctx context.Context, err error) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONResponseChiMiddleware lets handlers report results through
// SetJSONResponse / SetJSONError and renders them after the handler returns.
// Handlers that wrote to the ResponseWriter themselves and set nothing are left alone.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{}
			ctx := contextWithResponseReceiver(r.Context(), rr)
			next.ServeHTTP(rw, r.WithContext(ctx))
			if rr.err == nil && rr.response == nil {
				return
			}
			writeResponse(ctx, rw, rr)
		})
	}
}

type httpError struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Stack     string `json:"stack,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeResponse(ctx context.Context, rw http.ResponseWriter, rr *responseReceiver) {
	if rr.err != nil {
		writeJSONError(ctx, rw, normalize(ctx, rr.err))
		return
	}
	status := rr.status
	if status == 0 {
		status = http.StatusOK
	}
	body, err := encode(rr.response)
	if err != nil {
		writeJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	writeBody(ctx, rw, status, body)
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, e *Error) {
	he := httpError{
		Code:      e.Code.String(),
		Error:     e.Msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if e.Expose {
		if e.Err != nil {
			he.Detail = e.Err.Error()
		}
		he.Stack = e.Stack
	}
	body, err := encode(he)
	if err != nil {
		body = []byte(`{"success":false,"code":"internal","error":"server error"}` + "\n")
		clog.AddError(ctx, err)
	}
	writeBody(ctx, rw, e.Code.HTTPCode(), body)
}

func encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBody(ctx context.Context, rw http.ResponseWriter, status int, body []byte) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(body); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}
