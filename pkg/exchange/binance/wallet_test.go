package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binancewallet/pkg/core"
)

const (
	testAPIKey    = "ABCD1234"
	testAPISecret = "test-secret"
)

type stubResponse struct {
	status  int
	body    string
	headers map[string]string
}

// snapshotServer replays queued responses in order and repeats the last one.
type snapshotServer struct {
	t         *testing.T
	mu        sync.Mutex
	responses []stubResponse
	calls     int
	server    *httptest.Server
}

func newSnapshotServer(t *testing.T, responses ...stubResponse) *snapshotServer {
	s := &snapshotServer{t: t, responses: responses}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *snapshotServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := min(s.calls, len(s.responses)-1)
	s.calls++
	resp := s.responses[idx]
	s.mu.Unlock()

	assert.Equal(s.t, http.MethodGet, r.Method)
	assert.Equal(s.t, EndpointAccountSnapshot, r.URL.Path)
	assert.Equal(s.t, testAPIKey, r.Header.Get(HeaderAPIKey))
	assertSignedQuery(s.t, r.URL.RawQuery)

	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (s *snapshotServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func assertSignedQuery(t *testing.T, rawQuery string) {
	t.Helper()
	idx := strings.LastIndex(rawQuery, "&signature=")
	if !assert.GreaterOrEqual(t, idx, 0, "signature missing from %q", rawQuery) {
		return
	}
	canonical, signature := rawQuery[:idx], rawQuery[idx+len("&signature="):]
	assert.True(t, strings.HasPrefix(canonical, "type=SPOT&timestamp="), canonical)

	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write([]byte(canonical))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)
}

func newTestWallet(t *testing.T, baseURL string, logger zerolog.Logger) *Wallet {
	t.Helper()
	w, err := New(
		core.Credentials{APIKey: testAPIKey, SecretKey: testAPISecret},
		WithBaseURL(baseURL),
		WithTimeout(5*time.Second),
		WithLogger(logger),
		WithClock(fixedClock(1700000000000)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func snapshotBody(updateTime string, total string, balances string) string {
	return `{"code":200,"msg":"","snapshotVos":[{"type":"spot","updateTime":` + updateTime +
		`,"data":{"totalAssetOfBtc":` + total + `,"balances":[` + balances + `]}}]}`
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(core.Credentials{APIKey: "key"})
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidConfig))
	assert.ErrorIs(t, err, core.ErrNoCredentials)

	_, err = New(core.Credentials{SecretKey: "secret"})
	assert.Error(t, err)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(core.Credentials{APIKey: "k", SecretKey: "s"}, WithBaseURL(""))
	assert.ErrorContains(t, err, "create http client")
}

func TestNewFromConfig(t *testing.T) {
	config := core.DefaultConfig().WithCredentials(testAPIKey, testAPISecret)

	w, err := NewFromConfig(config)
	require.NoError(t, err)
	assert.NoError(t, w.Close())

	_, err = NewFromConfig(core.DefaultConfig())
	assert.True(t, core.IsErrorCode(err, core.ErrCodeInvalidConfig))
}

func TestWallet_InitialStateIsUnpopulated(t *testing.T) {
	w := newTestWallet(t, "http://127.0.0.1:1", zerolog.Nop())

	state := w.State()
	assert.False(t, state.Populated)
	assert.Empty(t, state.Balances)
	assert.Equal(t, "", state.FormattedTimestamp())
}

func TestWallet_Update_Success(t *testing.T) {
	srv := newSnapshotServer(t, stubResponse{status: 200, body: scenarioBody})
	w := newTestWallet(t, srv.server.URL, zerolog.Nop())

	w.Update(context.Background())

	state := w.State()
	assert.True(t, state.Populated)
	assert.Equal(t, 0.5, state.TotalBTC)
	assert.Equal(t, []core.Balance{{Asset: "BTC", Total: 0.5}}, state.Balances)
	assert.Equal(t, "14-11-2023 22:13", state.FormattedTimestamp())
	assert.Equal(t, 1, srv.Calls())
}

func TestWallet_Update_RateLimitedKeepsState(t *testing.T) {
	srv := newSnapshotServer(t,
		stubResponse{status: 200, body: scenarioBody},
		stubResponse{status: 429, body: `{"code":-1003,"msg":"Too many requests"}`},
	)
	var buf bytes.Buffer
	w := newTestWallet(t, srv.server.URL, zerolog.New(&buf))

	w.Update(context.Background())
	before := w.State()

	err := w.Refresh(context.Background())
	require.Error(t, err)
	outcome, ok := core.OutcomeOf(err)
	require.True(t, ok)
	assert.Equal(t, core.OutcomeRateLimitExceeded, outcome)

	assert.Equal(t, before, w.State())
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, buf.String(), "Too many requests")
}

func TestWallet_Update_RateLimitedFromEmpty(t *testing.T) {
	srv := newSnapshotServer(t, stubResponse{status: 429, body: `{}`})
	var buf bytes.Buffer
	w := newTestWallet(t, srv.server.URL, zerolog.New(&buf))

	w.Update(context.Background())

	assert.False(t, w.State().Populated)
	assert.Contains(t, buf.String(), "unsuccessful request")
}

func TestWallet_Update_EmptyObjectKeepsState(t *testing.T) {
	srv := newSnapshotServer(t,
		stubResponse{status: 200, body: scenarioBody},
		stubResponse{status: 200, body: `{}`},
	)
	var buf bytes.Buffer
	w := newTestWallet(t, srv.server.URL, zerolog.New(&buf))

	require.NoError(t, w.Refresh(context.Background()))
	before := w.State()

	err := w.Refresh(context.Background())
	assert.True(t, core.IsMissingField(err, "snapshotVos"))
	assert.Equal(t, before, w.State())
	assert.Contains(t, buf.String(), "required attribute missing")
	assert.Contains(t, buf.String(), "snapshotVos")
}

func TestWallet_Update_ParseFailuresKeepState(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{"missing_snapshot_vos", `{}`, func(err error) bool { return core.IsMissingField(err, "snapshotVos") }},
		{"missing_data", `{"snapshotVos":[{"updateTime":1700000000000}]}`, func(err error) bool { return core.IsMissingField(err, "data") }},
		{"missing_balances", `{"snapshotVos":[{"updateTime":1700000000000,"data":{"totalAssetOfBtc":1}}]}`, func(err error) bool { return core.IsMissingField(err, "data.balances") }},
		{"malformed_json", `{"snapshotVos":`, core.IsMalformedError},
		{"partial_balances", snapshotBody("1700003600000", "9", `{"asset":"ETH","free":"1","locked":"0"},{"asset":"BNB"}`), func(err error) bool { return core.IsMissingField(err, "data.balances[1].free") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSnapshotServer(t,
				stubResponse{status: 200, body: scenarioBody},
				stubResponse{status: 200, body: tt.body},
			)
			w := newTestWallet(t, srv.server.URL, zerolog.Nop())

			require.NoError(t, w.Refresh(context.Background()))
			before := w.State()

			err := w.Refresh(context.Background())
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Equal(t, before, w.State())
		})
	}
}

func TestWallet_Update_ReplacesBalances(t *testing.T) {
	srv := newSnapshotServer(t,
		stubResponse{status: 200, body: snapshotBody("1700000000000", "1", `{"asset":"BTC","free":"1","locked":"0"},{"asset":"ETH","free":"2","locked":"0"}`)},
		stubResponse{status: 200, body: snapshotBody("1700003600000", "0.7", `{"asset":"BTC","free":"0.7","locked":"0"}`)},
	)
	w := newTestWallet(t, srv.server.URL, zerolog.Nop())

	w.Update(context.Background())
	require.Len(t, w.State().Balances, 2)

	w.Update(context.Background())
	w.Update(context.Background())

	state := w.State()
	assert.Equal(t, []core.Balance{{Asset: "BTC", Total: 0.7}}, state.Balances)
	assert.Equal(t, 0.7, state.TotalBTC)
	assert.Equal(t, "14-11-2023 23:13", state.FormattedTimestamp())
}

func TestWallet_Fetch_Outcomes(t *testing.T) {
	tests := []struct {
		status int
		want   core.Outcome
	}{
		{403, core.OutcomeWafLimitViolated},
		{418, core.OutcomeIPBanned},
		{429, core.OutcomeRateLimitExceeded},
		{400, core.OutcomeRequestMalformed},
		{500, core.OutcomeInternalError},
		{204, core.OutcomeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			srv := newSnapshotServer(t, stubResponse{status: tt.status, body: scenarioBody})
			w := newTestWallet(t, srv.server.URL, zerolog.Nop())

			snap, err := w.Fetch(context.Background())
			assert.Nil(t, snap)
			assert.True(t, core.IsOutcomeError(err))
			outcome, _ := core.OutcomeOf(err)
			assert.Equal(t, tt.want, outcome)
			assert.False(t, w.State().Populated)
		})
	}
}

func TestWallet_Fetch_UndefinedStatusIsLogged(t *testing.T) {
	srv := newSnapshotServer(t, stubResponse{status: 202, body: scenarioBody})
	var buf bytes.Buffer
	w := newTestWallet(t, srv.server.URL, zerolog.New(&buf))

	_, err := w.Fetch(context.Background())

	require.Error(t, err)
	assert.Contains(t, buf.String(), "undefined HTTP status code")
}

func TestWallet_Refresh_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	w := newTestWallet(t, url, zerolog.New(&buf))

	err := w.Refresh(context.Background())

	assert.True(t, core.IsTransportError(err))
	assert.False(t, w.State().Populated)
	assert.Contains(t, buf.String(), "snapshot request failed")
}

func TestWallet_Refresh_CancelledContext(t *testing.T) {
	srv := newSnapshotServer(t, stubResponse{status: 200, body: scenarioBody})
	w := newTestWallet(t, srv.server.URL, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Refresh(ctx)
	assert.True(t, core.IsTransportError(err))
	assert.False(t, w.State().Populated)
}

func TestWallet_State_ReturnsCopy(t *testing.T) {
	srv := newSnapshotServer(t, stubResponse{status: 200, body: scenarioBody})
	w := newTestWallet(t, srv.server.URL, zerolog.Nop())
	w.Update(context.Background())

	state := w.State()
	state.Balances[0].Asset = "MUTATED"

	assert.Equal(t, "BTC", w.State().Balances[0].Asset)
}
