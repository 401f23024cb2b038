package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
	"github.com/lk2023060901/stratumd/app/stratumd/internal/session"
	"github.com/lk2023060901/stratumd/pkg/idgen"
)

func newTestAPI(t *testing.T, cfg *Config) (*API, *session.Manager, *job.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := session.NewManager()
	jobs := job.NewManager(idgen.NewSequential(), time.Minute)

	a, err := New(cfg, nil, sessions, jobs, nil, nil, nil, nil)
	require.NoError(t, err)
	return a, sessions, jobs
}

func doRequest(a *API, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.server.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	a, _, _ := newTestAPI(t, nil)

	w := doRequest(a, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatsWithoutAuth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = ""
	a, _, _ := newTestAPI(t, cfg)

	w := doRequest(a, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Sessions   map[string]int `json:"sessions"`
			ActiveJobs int            `json:"active_jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.ActiveJobs)
}

func TestStatsRequiresToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = "test-secret"
	a, _, _ := newTestAPI(t, cfg)

	w := doRequest(a, http.MethodGet, "/api/v1/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.JWT.SecretKey = "test-secret"
	cfg.AdminUser = "admin"
	cfg.AdminPasswordHash = string(hash)
	a, _, _ := newTestAPI(t, cfg)

	// 错误密码
	w := doRequest(a, http.MethodPost, "/api/v1/auth/token", `{"username":"admin","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 正确密码
	w = doRequest(a, http.MethodPost, "/api/v1/auth/token", `{"username":"admin","password":"s3cret"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)

	// 持令牌访问受保护接口
	w = doRequest(a, http.MethodGet, "/api/v1/stats", "", map[string]string{
		"Authorization": cfg.JWT.TokenPrefix + resp.Data.Token,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConnectionsEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = ""
	a, _, _ := newTestAPI(t, cfg)

	w := doRequest(a, http.MethodGet, "/api/v1/connections", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestWorkersWithoutStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SecretKey = ""
	a, _, _ := newTestAPI(t, cfg)

	w := doRequest(a, http.MethodGet, "/api/v1/workers", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(a, http.MethodGet, "/api/v1/workers/alice.rig1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
