package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anantadwi13/coredns-record-manager/internal/domain"
	"github.com/anantadwi13/coredns-record-manager/internal/external"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, withTemplate bool) (*service, *fakeProcessController) {
	t.Helper()
	config, _ := newTestConfig(t, nil)
	if withTemplate {
		require.NoError(t, os.MkdirAll(filepath.Dir(config.TemplatePath()), 0755))
		require.NoError(t, os.WriteFile(config.TemplatePath(), []byte(testTemplate), 0644))
	}

	repo, err := external.NewJsonRecordRepository(config.StoragePath())
	require.NoError(t, err)

	proc := &fakeProcessController{}
	s := NewService(config, zap.NewNop())
	s.e = echo.New()
	s.repository = repo
	s.store = NewRecordStore(repo)
	s.metrics = NewMetrics()
	s.dnsServer = NewCorednsServer(config, s.store, NewReloadCoordinator(config, proc, s.metrics, s.log), s.metrics, s.log)
	s.registerRoute()
	return s, proc
}

func doRequest(s *service, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	msg := MessageResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	return msg.Message
}

func TestHandleListRecordsEmpty(t *testing.T) {
	s, _ := newTestService(t, true)

	rec := doRequest(s, http.MethodGet, "/api/records", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleCreateRecord(t *testing.T) {
	s, proc := newTestService(t, true)

	rec := doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, `{"fqdn": " WWW.example.com. ", "ip": "10.0.0.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"fqdn": "www.example.com", "ip": "10.0.0.5", "domain": "example.com"}`, rec.Body.String())

	form := url.Values{"fqdn": {"host.other.org"}, "ip": {"10.0.1.2"}}
	rec = doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationForm, form.Encode())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/api/records", "", "")
	assert.JSONEq(t, `[
		{"fqdn": "www.example.com", "ip": "10.0.0.5", "domain": "example.com"},
		{"fqdn": "host.other.org", "ip": "10.0.1.2", "domain": "other.org"}
	]`, rec.Body.String())

	corefile := readFile(t, s.config.CorefilePath())
	assert.Contains(t, corefile, "example.com:53 {")
	assert.Contains(t, corefile, "1.0.10.in-addr.arpa:53 {")
	assert.Len(t, proc.started, 2, "every mutation reloads the server")
}

func TestHandleCreateRecordErrors(t *testing.T) {
	s, _ := newTestService(t, true)
	rec := doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, `{"fqdn": "www.example.com", "ip": "10.0.0.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"missing fqdn", `{"ip": "10.0.0.5"}`, http.StatusBadRequest, "fqdn is required"},
		{"missing ip", `{"fqdn": "a.example.com"}`, http.StatusBadRequest, "ip address is required"},
		{"malformed body", `{"fqdn": `, http.StatusBadRequest, "malformed request body"},
		{"invalid ip", `{"fqdn": "a.example.com", "ip": "10.0.0.256"}`, http.StatusBadRequest, "invalid ip address format"},
		{"single label", `{"fqdn": "localhost", "ip": "127.0.0.1"}`, http.StatusBadRequest, "at least two labels"},
		{"duplicate", `{"fqdn": "WWW.EXAMPLE.COM.", "ip": "10.0.0.6"}`, http.StatusConflict, "already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, decodeMessage(t, rec), tt.message)
		})
	}
}

func TestHandleCreateRecordMissingTemplate(t *testing.T) {
	s, proc := newTestService(t, false)

	rec := doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, `{"fqdn": "www.example.com", "ip": "10.0.0.5"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), domain.ErrConfigurationMissing.Error())
	assert.Empty(t, proc.started)

	records, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1, "the record stays stored")
}

func TestHandleDeleteRecord(t *testing.T) {
	s, proc := newTestService(t, true)
	rec := doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, `{"fqdn": "www.example.com", "ip": "10.0.0.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/records/WWW.example.com.", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, proc.started, 2)

	rec = doRequest(s, http.MethodDelete, "/api/records/www.example.com", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "not found")
	assert.Len(t, proc.started, 2, "failed mutations do not reload")

	assert.NotContains(t, readFile(t, s.config.CorefilePath()), "example.com:53")
}

func TestHandleListRecordsCorruptStore(t *testing.T) {
	s, _ := newTestService(t, true)
	require.NoError(t, os.WriteFile(s.config.StoragePath(), []byte(`[{"fqdn": "x", "ip": "1.1.1.1"}]`), 0644))

	rec := doRequest(s, http.MethodGet, "/api/records", "", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServiceStartupWithoutTemplateDirectory(t *testing.T) {
	ctx := context.Background()
	s, proc := newTestService(t, false)
	require.NoDirExists(t, filepath.Dir(s.config.TemplatePath()))
	require.True(t, s.config.WatchTemplate())

	assert.NotPanics(t, func() {
		s.loadDNSService(ctx)
		s.loadTemplateWatcher(ctx)
	})
	assert.Nil(t, s.watcher)
	assert.Empty(t, proc.started)

	rec := doRequest(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.gracefulShutdown(ctx)
	s.shutdownWg.Wait()
}

func TestServiceStartupWatchesTemplate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, true)

	s.loadTemplateWatcher(ctx)
	require.NotNil(t, s.watcher)

	s.gracefulShutdown(ctx)
	s.shutdownWg.Wait()
}

func TestHandleHealthAndMetrics(t *testing.T) {
	s, _ := newTestService(t, true)
	doRequest(s, http.MethodPost, "/api/records", echo.MIMEApplicationJSON, `{"fqdn": "www.example.com", "ip": "10.0.0.5"}`)

	rec := doRequest(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeMessage(t, rec))

	rec = doRequest(s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `coredns_manager_synthesis_total{result="ok"} 1`)
	assert.Contains(t, body, `coredns_manager_zones{kind="forward"} 1`)
	assert.Contains(t, body, `coredns_manager_reload_total{result="ok",strategy="restart"} 1`)
	assert.Contains(t, body, `coredns_manager_record_mutations_total{operation="add",result="ok"} 1`)
}
