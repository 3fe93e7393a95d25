package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/graphqlapi"
	"github.com/oremus-labs/ol-cvi-coach/internal/handlers"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct{}

func (stubSessions) Signup(context.Context, persona.UserProfile, string) (*session.Session, error) {
	return &session.Session{ID: "s1", Status: session.StatusCreated}, nil
}

func (stubSessions) Get(context.Context, string) (*session.Session, error) {
	return nil, session.ErrNotFound
}

func (stubSessions) StartCall(context.Context, string) (*session.Session, error) {
	return nil, session.ErrNotFound
}

func (stubSessions) EndCall(context.Context, string, []feedback.Message) (*session.Session, error) {
	return nil, session.ErrNotFound
}

func (stubSessions) Feedback(context.Context, string, []feedback.Message) (*session.FeedbackResult, error) {
	return nil, session.ErrNotFound
}

type stubHistory struct{}

func (stubHistory) ListHistory(int) ([]store.HistoryEntry, error) {
	return nil, nil
}

func newTestServer(token string) *Server {
	catalog := persona.NewCatalog("")
	h := handlers.New(stubSessions{}, catalog, stubHistory{}, nil, handlers.Options{Logger: zerolog.Nop()})
	return NewServer(h, Options{APIToken: token, Logger: zerolog.Nop()})
}

func do(s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestRoutesAreWired(t *testing.T) {
	s := newTestServer("")

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/scenarios", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/openapi", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/sessions/missing", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/sessions/missing/call", "", nil).Code)

	w := do(s, http.MethodPost, "/signup", `{"name":"Ada","role":"Engineer","email":"ada@example.com"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer("")
	do(s, http.MethodGet, "/healthz", "", nil)

	w := do(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cvi_http_requests_total")
}

func TestHistoryRequiresToken(t *testing.T) {
	s := newTestServer("secret")

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/history", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/history", "", map[string]string{"Authorization": "Bearer wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/history", "", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/history", "", map[string]string{"X-API-Key": "secret"}).Code)

	// Session routes stay public.
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/scenarios", "", nil).Code)
}

func TestEventsRequireToken(t *testing.T) {
	s := newTestServer("secret")

	// no bus is wired, so an authorised request reaches the handler and gets 503
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/events", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/events", "", map[string]string{"Authorization": "Bearer wrong"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/events", "", map[string]string{"Authorization": "Bearer secret"}).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer("")
	w := do(s, http.MethodGet, "/healthz", "", map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestGraphQLIsProtected(t *testing.T) {
	catalog := persona.NewCatalog("")
	gql, err := graphqlapi.NewHandler(graphqlapi.Config{Scenarios: catalog})
	require.NoError(t, err)
	h := handlers.New(stubSessions{}, catalog, stubHistory{}, nil, handlers.Options{Logger: zerolog.Nop()})
	s := NewServer(h, Options{APIToken: "secret", GraphQLHandler: gql, Logger: zerolog.Nop()})

	body := `{"query":"{ scenarios { key } }"}`
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/graphql", body, nil).Code)

	w := do(s, http.MethodPost, "/graphql", body, map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pip_swe")
}
