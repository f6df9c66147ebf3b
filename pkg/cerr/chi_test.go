package cerr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewJSONResponseChiMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestMiddlewareWritesResponse(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		SetJSONResponse(r.Context(), map[string]any{"success": true})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestMiddlewareWritesErrorWithStatus(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		SetNewJSONError(r.Context(), Unauthenticated, "invalid signature", nil)
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unauthenticated", body["code"])
	assert.Equal(t, "invalid signature", body["error"])
	assert.NotContains(t, body, "stack")
}

func TestMiddlewareExposesDetailOnlyWhenAsked(t *testing.T) {
	underlying := errors.New("notion: 502 bad gateway")

	hidden := serve(func(w http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), NewError(Internal, "sync failed", underlying))
	})
	assert.Equal(t, http.StatusInternalServerError, hidden.Code)
	assert.NotContains(t, hidden.Body.String(), "bad gateway")

	exposed := serve(func(w http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), NewError(Internal, "sync failed", underlying).WithExposedDetail())
	})
	var body map[string]any
	require.NoError(t, json.Unmarshal(exposed.Body.Bytes(), &body))
	assert.Equal(t, "notion: 502 bad gateway", body["detail"])
	assert.NotEmpty(t, body["stack"])
}

func TestMiddlewareWrapsForeignErrors(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		SetJSONError(r.Context(), errors.New("boom"))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"unknown"`)
}

func TestMiddlewareLeavesDirectWritesAlone(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Aborted, CodeOf(NewError(Aborted, "busy", nil)))
	assert.Equal(t, Unknown, CodeOf(errors.New("x")))
	assert.True(t, IsCode(NewError(NotFound, "missing", nil), NotFound))
}
