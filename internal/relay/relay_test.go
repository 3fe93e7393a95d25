package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/gin-gonic/gin"
	"github.com/oremus-labs/ol-cvi-coach/internal/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const scenarioBody = `{"event_type":"application.transcription_ready","message_type":"application","conversation_id":"c1","timestamp":"2025-07-11T06:48:37Z","webhook_url":"https://provider/hook","properties":{"transcript":[{"role":"user","content":"Hi."}]}}`

type fakePoster struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	panicVal interface{}
	payloads []interface{}
}

func (f *fakePoster) Enabled() bool { return f.enabled }

func (f *fakePoster) Post(ctx context.Context, payload interface{}) error {
	if f.panicVal != nil {
		panic(f.panicVal)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakePoster) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestRelay(p Poster) *Relay {
	return New(Options{Route: "/tavus/webhook", Downstream: p, Logger: zerolog.Nop()})
}

func serve(t *testing.T, r *Relay, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	r.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body=%s", w.Body.String())
	return body
}

func TestScenarioForwardsTranscript(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]interface{}
		headers  []string
	)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(raw, &payload)
		mu.Lock()
		received = append(received, payload)
		headers = append(headers, r.Header.Get("Content-Type"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	r := newTestRelay(notify.New(downstream.URL, downstream.Client()))
	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "application/json", headers[0])

	want := `{"source":"tavus","event_type":"application.transcription_ready","message_type":"application","conversation_id":"c1","timestamp":"2025-07-11T06:48:37Z","webhook_url":"https://provider/hook","transcript":[{"role":"user","content":"Hi."}]}`
	got, err := json.Marshal(received[0])
	require.NoError(t, err)
	assert.JSONEq(t, want, string(got))
}

func TestNonMatchingRouteOrMethodIsNotFound(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
	}{
		{"get on route", http.MethodGet, "/tavus/webhook"},
		{"put on route", http.MethodPut, "/tavus/webhook"},
		{"post elsewhere", http.MethodPost, "/other"},
		{"post root", http.MethodPost, "/"},
		{"trailing slash", http.MethodPost, "/tavus/webhook/"},
		{"sub path", http.MethodPost, "/tavus/webhook/extra"},
		{"get elsewhere", http.MethodGet, "/metrics"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			poster := &fakePoster{enabled: true}
			r := newTestRelay(poster)

			w := serve(t, r, tc.method, tc.path, strings.NewReader(scenarioBody))

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "Not found", decodeBody(t, w)["error"])
			assert.Zero(t, poster.calls())
		})
	}
}

func TestQueryStringDoesNotAffectRouting(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)

	w := serve(t, r, http.MethodPost, "/tavus/webhook?attempt=1", strings.NewReader(scenarioBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, poster.calls())
}

func TestInvalidJSONIsBadRequest(t *testing.T) {
	bodies := []string{
		"",
		"{",
		"not json",
		`{"event_type": }`,
		`{"event_type":"application.transcription_ready",}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			poster := &fakePoster{enabled: true}
			r := newTestRelay(poster)

			w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Invalid JSON", decodeBody(t, w)["error"])
			assert.Zero(t, poster.calls())
		})
	}
}

func TestValidJSONOfAnyShapeIsAcknowledged(t *testing.T) {
	bodies := []string{
		"null",
		"[]",
		`["application.transcription_ready"]`,
		`"application.transcription_ready"`,
		`{"event_type": 42}`,
		`{"event_type":"system.shutdown","conversation_id":7}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			poster := &fakePoster{enabled: true}
			r := newTestRelay(poster)

			w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
			assert.Zero(t, poster.calls())
		})
	}
}

func TestOffTypeFieldsAreForwardedVerbatim(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"numeric timestamp": {
			body: `{"event_type":"application.transcription_ready","conversation_id":"c1","timestamp":1720680517,"properties":{"transcript":[]}}`,
			want: `{"source":"tavus","event_type":"application.transcription_ready","conversation_id":"c1","timestamp":1720680517,"transcript":[]}`,
		},
		"string properties": {
			body: `{"event_type":"application.transcription_ready","conversation_id":"c2","properties":"x"}`,
			want: `{"source":"tavus","event_type":"application.transcription_ready","conversation_id":"c2","transcript":[]}`,
		},
		"string transcript": {
			body: `{"event_type":"application.transcription_ready","properties":{"transcript":"Hi."}}`,
			want: `{"source":"tavus","event_type":"application.transcription_ready","transcript":"Hi."}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			poster := &fakePoster{enabled: true}
			r := newTestRelay(poster)

			w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(tc.body))

			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, 1, poster.calls())
			raw, err := json.Marshal(poster.payloads[0])
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(raw))
		})
	}
}

func TestTranscriptTurnsKeepExtraFields(t *testing.T) {
	var received []byte
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
	}))
	defer downstream.Close()

	r := newTestRelay(notify.New(downstream.URL, downstream.Client()))
	turns := `[{"role":"user","content":"Hi.","start":1.5,"speaker_id":"u1"},{"role":"assistant","content":"Hello","meta":{"emotion":"calm"}}]`
	body := `{"event_type":"application.transcription_ready","conversation_id":"c1","properties":{"transcript":` + turns + `}}`

	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	require.NoError(t, json.Unmarshal(received, &payload))
	assert.JSONEq(t, turns, string(payload.Transcript))
}

func TestOtherEventTypesAreAcknowledgedWithoutForwarding(t *testing.T) {
	for _, eventType := range []string{"system.replica_joined", "system.shutdown", "application.perception_analysis", ""} {
		t.Run(eventType, func(t *testing.T) {
			poster := &fakePoster{enabled: true}
			r := newTestRelay(poster)
			body := `{"event_type":"` + eventType + `","message_type":"system","conversation_id":"c2"}`

			w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
			assert.Zero(t, poster.calls())
		})
	}
}

func TestMissingTranscriptForwardsEmptyList(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)
	body := `{"event_type":"application.transcription_ready","conversation_id":"c3","properties":{"replica_id":"r1"}}`

	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, poster.calls())
	env, ok := poster.payloads[0].(ForwardEnvelope)
	require.True(t, ok)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"transcript":[]`)
	assert.NotContains(t, string(raw), "message_type")
}

func TestMissingPropertiesForwardsEmptyList(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)
	body := `{"event_type":"application.transcription_ready","conversation_id":"c4","properties":null}`

	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, poster.calls())
	assert.JSONEq(t, `[]`, string(poster.payloads[0].(ForwardEnvelope).Transcript))
}

func TestUnknownFieldsAreTolerated(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)
	body := `{"event_type":"application.transcription_ready","conversation_id":"c5","extra":{"a":1},
		"properties":{"transcript":[{"role":"assistant","content":"How's it going?","ts":3}],"shutdown_reason":"done"}}`

	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(body))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, poster.calls())
	env := poster.payloads[0].(ForwardEnvelope)
	assert.JSONEq(t, `[{"role":"assistant","content":"How's it going?","ts":3}]`, string(env.Transcript))
}

func TestDownstreamUnsetSkipsForwarding(t *testing.T) {
	for name, poster := range map[string]Poster{
		"nil poster":      nil,
		"disabled poster": &fakePoster{enabled: false},
		"empty url":       notify.New("", nil),
	} {
		t.Run(name, func(t *testing.T) {
			r := newTestRelay(poster)

			w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
			if fp, ok := poster.(*fakePoster); ok {
				assert.Zero(t, fp.calls())
			}
			assert.ErrorIs(t, r.Forward(context.Background(), ForwardEnvelope{}), ErrForwardingDisabled)
		})
	}
}

func TestForwardFailureStillAcknowledges(t *testing.T) {
	t.Run("poster error", func(t *testing.T) {
		poster := &fakePoster{enabled: true, err: errors.New("connection refused")}
		r := newTestRelay(poster)

		w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
		assert.Equal(t, 1, poster.calls())
	})

	t.Run("downstream 500", func(t *testing.T) {
		hits := 0
		downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer downstream.Close()
		r := newTestRelay(notify.New(downstream.URL, downstream.Client()))

		w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
		assert.Equal(t, 1, hits, "no retry on failure")
	})

	t.Run("network error", func(t *testing.T) {
		downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := downstream.URL
		downstream.Close()
		r := newTestRelay(notify.New(url, nil))

		w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
	})
}

func TestDuplicateCallbacksForwardTwice(t *testing.T) {
	// No deduplication: the same envelope delivered twice is forwarded twice.
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)

	for i := 0; i < 2; i++ {
		w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Equal(t, 2, poster.calls())
	assert.Equal(t, poster.payloads[0], poster.payloads[1])
}

func TestBodyReadFailureIsInternalError(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := newTestRelay(poster)

	w := serve(t, r, http.MethodPost, "/tavus/webhook", iotest.ErrReader(errors.New("connection reset")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, w)["error"])
	assert.Zero(t, poster.calls())
}

func TestPanicIsInternalErrorWithoutDetails(t *testing.T) {
	poster := &fakePoster{enabled: true, panicVal: "secret detail"}
	r := newTestRelay(poster)

	w := serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestCustomRoute(t *testing.T) {
	poster := &fakePoster{enabled: true}
	r := New(Options{Route: "/hooks/cvi", Downstream: poster, Logger: zerolog.Nop()})

	assert.Equal(t, http.StatusNotFound, serve(t, r, http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody)).Code)
	assert.Equal(t, http.StatusOK, serve(t, r, http.MethodPost, "/hooks/cvi", strings.NewReader(scenarioBody)).Code)
	assert.Equal(t, 1, poster.calls())
}

func TestDefaultRoute(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	assert.Equal(t, "/tavus/webhook", r.Route())
}

func TestForwardIsNotCancelledByInboundContext(t *testing.T) {
	var gotErr error
	poster := &ctxPoster{check: func(ctx context.Context) { gotErr = ctx.Err() }}
	r := newTestRelay(poster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/tavus/webhook", strings.NewReader(scenarioBody)).WithContext(ctx)
	w := httptest.NewRecorder()
	r.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, gotErr)
}

type ctxPoster struct {
	check func(context.Context)
}

func (p *ctxPoster) Enabled() bool { return true }

func (p *ctxPoster) Post(ctx context.Context, payload interface{}) error {
	p.check(ctx)
	return nil
}
