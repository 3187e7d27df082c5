// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tourtracker/internal/ingest"
	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/stats"
	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

const (
	testKey     = "secret"
	testPlayer  = "76561198000000001"
	testPlayer2 = "76561198000000002"
)

var testNow = time.Unix(1700000000, 0)

type fakeLog struct {
	stats wal.Stats
}

func (f fakeLog) Stats() wal.Stats { return f.stats }

type fakeSnapshots struct {
	snap *stats.Snapshot
}

func (f *fakeSnapshots) Current() *stats.Snapshot { return f.snap }

type testServer struct {
	handler   *Handler
	router    http.Handler
	index     *progress.Index
	queue     *ingest.Queue
	board     *stats.ServerBoard
	snapshots *fakeSnapshots
}

type serverOptions struct {
	queueLimit       int
	reportDuplicates bool
	rateLimit        int
	trustedProxies   []string
}

// newTestServer builds a router over catalog [a: 3 waves, b: 2 waves].
func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	catalog, err := tour.NewCatalog([]tour.Mission{{Name: "a", Waves: 3}, {Name: "b", Waves: 2}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if opts.queueLimit == 0 {
		opts.queueLimit = 100
	}
	mw := DefaultChiMiddlewareConfig()
	if opts.rateLimit > 0 {
		mw.RateLimitRequests = opts.rateLimit
	} else {
		mw.RateLimitDisabled = true
	}
	mw.TrustedProxies = opts.trustedProxies

	ts := &testServer{
		index:     progress.NewIndex(catalog),
		queue:     ingest.NewQueue(opts.queueLimit),
		board:     stats.NewServerBoard(time.Minute),
		snapshots: &fakeSnapshots{},
	}
	ts.handler = NewHandler(Deps{
		Index:            ts.index,
		Queue:            ts.queue,
		Stats:            ts.snapshots,
		Board:            ts.board,
		Log:              fakeLog{stats: wal.Stats{Credits: 7}},
		APIKey:           testKey,
		ReportDuplicates: opts.reportDuplicates,
	})
	ts.handler.now = func() time.Time { return testNow }
	ts.router = NewRouter(ts.handler, RouterConfig{MaxBodyBytes: 1024, Middleware: mw}).SetupChi()
	return ts
}

func (ts *testServer) credit(t *testing.T, id uint64, mission, wave int, at int64) {
	t.Helper()
	if _, err := ts.index.ApplyEvent(tour.Event{Participant: id, Timestamp: at, Mission: mission, Wave: wave}); err != nil {
		t.Fatalf("ApplyEvent() error = %v", err)
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func creditValues(key, id, mission, wave string) url.Values {
	return url.Values{
		"key":       {key},
		"steam64":   {id},
		"timestamp": {"1700000000"},
		"mission":   {mission},
		"wave":      {wave},
	}
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantBody   string
		wantQueued int
	}{
		{"new credit", creditValues(testKey, testPlayer, "0", "1"), http.StatusOK, "2", 1},
		{"last wave", creditValues(testKey, testPlayer, "1", "2"), http.StatusOK, "2", 1},
		{"missing key", creditValues("", testPlayer, "0", "1"), http.StatusUnauthorized, "", 0},
		{"wrong key", creditValues("nope", testPlayer, "0", "1"), http.StatusUnauthorized, "", 0},
		{"bad steam id", creditValues(testKey, "abc", "0", "1"), http.StatusBadRequest, "", 0},
		{"float steam id", creditValues(testKey, "7.6561198e16", "0", "1"), http.StatusBadRequest, "", 0},
		{"wave zero", creditValues(testKey, testPlayer, "0", "0"), http.StatusBadRequest, "", 0},
		{"wave past end", creditValues(testKey, testPlayer, "0", "4"), http.StatusBadRequest, "", 0},
		{"unknown mission", creditValues(testKey, testPlayer, "2", "1"), http.StatusBadRequest, "", 0},
		{"negative mission", creditValues(testKey, testPlayer, "-1", "1"), http.StatusBadRequest, "", 0},
		{"missing timestamp", url.Values{"key": {testKey}, "steam64": {testPlayer}, "mission": {"0"}, "wave": {"1"}}, http.StatusBadRequest, "", 0},
		{"steamid alias", url.Values{
			"key": {testKey}, "steamid": {testPlayer}, "timestamp": {"1"}, "mission": {"0"}, "wave": {"3"},
		}, http.StatusOK, "2", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, serverOptions{reportDuplicates: true})
			rec := ts.do(postForm("/", tt.form))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if got := ts.queue.Len(); got != tt.wantQueued {
				t.Errorf("queued = %d, want %d", got, tt.wantQueued)
			}
		})
	}
}

func TestIngest_AlreadyCredited(t *testing.T) {
	ts := newTestServer(t, serverOptions{reportDuplicates: true})
	ts.credit(t, 76561198000000001, 0, 2, 1000)

	rec := ts.do(postForm("/", creditValues(testKey, testPlayer, "0", "2")))
	if rec.Code != http.StatusOK || rec.Body.String() != "1" {
		t.Fatalf("got %d %q, want 200 \"1\"", rec.Code, rec.Body.String())
	}
	// Duplicates are still queued so the durable log sees every report.
	if ts.queue.Len() != 1 {
		t.Errorf("queued = %d, want 1", ts.queue.Len())
	}
}

func TestIngest_DuplicateReportingDisabled(t *testing.T) {
	ts := newTestServer(t, serverOptions{reportDuplicates: false})

	rec := ts.do(postForm("/", creditValues(testKey, testPlayer, "0", "1")))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("got %d %q, want empty 200", rec.Code, rec.Body.String())
	}
}

func TestIngest_QueueFull(t *testing.T) {
	ts := newTestServer(t, serverOptions{queueLimit: 1, reportDuplicates: true})

	if rec := ts.do(postForm("/", creditValues(testKey, testPlayer, "0", "1"))); rec.Code != http.StatusOK {
		t.Fatalf("first report status = %d", rec.Code)
	}
	rec := ts.do(postForm("/", creditValues(testKey, testPlayer, "0", "2")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, serverOptions{reportDuplicates: true})
	form := creditValues(testKey, testPlayer, "0", "1")
	form.Set("padding", strings.Repeat("x", 2048))

	rec := ts.do(postForm("/", form))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ts.queue.Len() != 0 {
		t.Error("oversized report must not be queued")
	}
}

func TestQuery(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	for w := 1; w <= 3; w++ {
		ts.credit(t, 76561198000000001, 0, w, int64(1000+w))
	}
	ts.credit(t, 76561198000000001, 1, 1, 2000)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"full tour", "key=secret&steam64=" + testPlayer, http.StatusOK, "\"tour\"\n{\n\"0\" \"14\"\n\"1\" \"2\"\n}"},
		{"one mission", "key=secret&steam64=" + testPlayer + "&mission=0", http.StatusOK, "\"mission\"\n{\n\"0\"\t\"14\"\n}"},
		{"unknown participant", "key=secret&steam64=" + testPlayer2, http.StatusOK, "\"tour\"\n{\n}"},
		{"unknown participant mission", "key=secret&steam64=" + testPlayer2 + "&mission=1", http.StatusOK, "\"mission\"\n{\n}"},
		{"unknown mission", "key=secret&steam64=" + testPlayer + "&mission=9", http.StatusBadRequest, ""},
		{"missing steam64", "key=secret", http.StatusBadRequest, ""},
		{"wrong key", "key=x&steam64=" + testPlayer, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestVDF_NoKeyAndGzip(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.credit(t, 76561198000000001, 1, 2, 2000)

	req := httptest.NewRequest(http.MethodGet, "/tour/vdf?steam64="+testPlayer, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := ts.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := readBody(t, rec); got != "\"tour\"\n{\n\"0\" \"0\"\n\"1\" \"4\"\n}" {
		t.Errorf("body = %q", got)
	}
}

func TestPlayerCSV(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ts.credit(t, 76561198000000001, 0, 1, 1001)
	ts.credit(t, 76561198000000001, 0, 3, 1003)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"known", "/tour/" + testPlayer + ".csv", http.StatusOK, "1700000000,5,3\n1001,,1003\n,,-1\n"},
		{"unknown", "/tour/" + testPlayer2 + ".csv", http.StatusOK, "1700000000,5,3\n"},
		{"not an id", "/tour/abc.csv", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestGlobalCSV(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/tour/global.csv", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before first build: status = %d, want 503", rec.Code)
	}

	daily := stats.NewDailyCounter(time.UTC)
	rebuilder := stats.NewRebuilder(ts.index, daily, time.UTC, time.Minute)
	if _, err := rebuilder.RebuildIfChanged(); err != nil {
		t.Fatalf("RebuildIfChanged() error = %v", err)
	}
	ts.snapshots.snap = rebuilder.Current()

	plain := ts.do(httptest.NewRequest(http.MethodGet, "/tour/global.csv", nil))
	if plain.Code != http.StatusOK || plain.Body.String() != string(ts.snapshots.snap.Raw) {
		t.Fatalf("plain: status %d body %q", plain.Code, plain.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/tour/global.csv", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	zipped := ts.do(req)
	if zipped.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("gzip not negotiated")
	}
	if got := readBody(t, zipped); got != string(ts.snapshots.snap.Raw) {
		t.Errorf("gzip body = %q, want %q", got, ts.snapshots.snap.Raw)
	}
}

func serverReportValues(key string) url.Values {
	return url.Values{
		"key":         {key},
		"number":      {"3"},
		"haspassword": {"0"},
		"mission":     {"1"},
		"defenders":   {"5"},
		"connecting":  {"1"},
		"wave":        {"2"},
		"roundstate":  {"running"},
		"port":        {"27015"},
	}
}

func TestServerReport(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	req := postForm("/tour/servers", serverReportValues(testKey))
	req.RemoteAddr = "10.0.0.5:40000"
	if rec := ts.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("report status = %d, want 204", rec.Code)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/tour/servers.csv", nil))
	want := "1700000000\n3,0,1,5,1,2,2,running,10.0.0.5,27015,1700000000\n"
	if rec.Body.String() != want {
		t.Errorf("servers.csv = %q, want %q", rec.Body.String(), want)
	}
}

func TestServerReport_Invalid(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	form := serverReportValues(testKey)
	form.Set("mission", "7")
	if rec := ts.do(postForm("/tour/servers", form)); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mission: status = %d, want 400", rec.Code)
	}

	form = serverReportValues(testKey)
	form.Del("port")
	if rec := ts.do(postForm("/tour/servers", form)); rec.Code != http.StatusBadRequest {
		t.Errorf("missing port: status = %d, want 400", rec.Code)
	}
}

func TestServerReport_BadKeyBans(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	bad := postForm("/tour/servers", serverReportValues("guess"))
	bad.RemoteAddr = "203.0.113.9:5000"
	if rec := ts.do(bad); rec.Code != http.StatusForbidden {
		t.Fatalf("bad key status = %d, want 403", rec.Code)
	}
	if !ts.board.IsBanned("203.0.113.9") {
		t.Fatal("address not banned after bad key")
	}

	// The right key no longer helps from a banned address.
	good := postForm("/tour/servers", serverReportValues(testKey))
	good.RemoteAddr = "203.0.113.9:5001"
	if rec := ts.do(good); rec.Code != http.StatusForbidden {
		t.Errorf("banned address status = %d, want 403", rec.Code)
	}
	if n := len(ts.board.Active(testNow)); n != 0 {
		t.Errorf("active servers = %d, want 0", n)
	}

	other := postForm("/tour/servers", serverReportValues(testKey))
	other.RemoteAddr = "198.51.100.1:5000"
	if rec := ts.do(other); rec.Code != http.StatusNoContent {
		t.Errorf("other address status = %d, want 204", rec.Code)
	}
}

func TestServerReport_ForwardedHeaderIgnoredFromUntrustedPeer(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	bad := postForm("/tour/servers", serverReportValues("guess"))
	bad.RemoteAddr = "203.0.113.9:5000"
	bad.Header.Set("X-Forwarded-For", "10.0.0.5")
	bad.Header.Set("X-Real-IP", "10.0.0.5")
	if rec := ts.do(bad); rec.Code != http.StatusForbidden {
		t.Fatalf("bad key status = %d, want 403", rec.Code)
	}
	if !ts.board.IsBanned("203.0.113.9") {
		t.Error("sender's own address must be banned")
	}
	if ts.board.IsBanned("10.0.0.5") {
		t.Fatal("forwarded address must not be banned")
	}

	good := postForm("/tour/servers", serverReportValues(testKey))
	good.RemoteAddr = "10.0.0.5:40000"
	if rec := ts.do(good); rec.Code != http.StatusNoContent {
		t.Errorf("server status = %d, want 204", rec.Code)
	}
}

func TestServerReport_TrustedProxyForwardsClient(t *testing.T) {
	ts := newTestServer(t, serverOptions{trustedProxies: []string{"192.0.2.10"}})

	bad := postForm("/tour/servers", serverReportValues("guess"))
	bad.RemoteAddr = "192.0.2.10:8080"
	bad.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.10")
	if rec := ts.do(bad); rec.Code != http.StatusForbidden {
		t.Fatalf("bad key status = %d, want 403", rec.Code)
	}
	if !ts.board.IsBanned("203.0.113.9") {
		t.Error("forwarded client must be banned")
	}
	if ts.board.IsBanned("192.0.2.10") {
		t.Fatal("proxy address must not be banned")
	}

	good := postForm("/tour/servers", serverReportValues(testKey))
	good.RemoteAddr = "192.0.2.10:8081"
	good.Header.Set("X-Real-IP", "10.0.0.5")
	if rec := ts.do(good); rec.Code != http.StatusNoContent {
		t.Fatalf("forwarded server status = %d, want 204", rec.Code)
	}
	active := ts.board.Active(testNow)
	if len(active) != 1 || active[0].IP != "10.0.0.5" {
		t.Errorf("active = %+v, want one server at 10.0.0.5", active)
	}
}

func TestWebViews_RateLimited(t *testing.T) {
	ts := newTestServer(t, serverOptions{rateLimit: 2})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tour/servers.csv", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		last = ts.do(req).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// The game-server protocol is not limited.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/?key=secret&steam64="+testPlayer, nil)
		req.RemoteAddr = "192.0.2.1:1234"
		if code := ts.do(req).Code; code != http.StatusOK {
			t.Fatalf("protocol query %d status = %d", i, code)
		}
	}
}

func TestHealthAndStats(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)); rec.Code != http.StatusOK {
		t.Errorf("live status = %d", rec.Code)
	}
	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before replay status = %d, want 503", rec.Code)
	}
	ts.handler.SetReady(true)
	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/log/stats", nil))
	var logResp struct {
		Success bool      `json:"success"`
		Data    wal.Stats `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &logResp); err != nil {
		t.Fatalf("decode log stats: %v", err)
	}
	if !logResp.Success || logResp.Data.Credits != 7 {
		t.Errorf("log stats = %+v", logResp)
	}

	ts.credit(t, 76561198000000001, 0, 1, 1)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/tour/stats", nil))
	var tourResp struct {
		Data TourStatsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tourResp); err != nil {
		t.Fatalf("decode tour stats: %v", err)
	}
	if tourResp.Data.Missions != 2 || tourResp.Data.TotalCredits != 5 || tourResp.Data.Index.Participants != 1 {
		t.Errorf("tour stats = %+v", tourResp.Data)
	}
}

func readBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Header().Get("Content-Encoding") != "gzip" {
		return rec.Body.String()
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	defer zr.Close()
	b, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	return string(b)
}
