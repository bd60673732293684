package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/config"
	"github.com/ricirt/pigeonpost/internal/lock"
	"github.com/ricirt/pigeonpost/internal/news"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Transport:           config.TransportLog,
		DefaultFrom:         "pigeonpost@example.com",
		MaxRetries:          3,
		RenderFailurePolicy: "abort",
		LockBackend:         config.LockFile,
		LockName:            "deploy",
		LockDir:             t.TempDir(),
	}
}

func TestBuild_WiresEverything(t *testing.T) {
	a, err := Build(testConfig(t), zap.NewNop(), nil)
	require.NoError(t, err)

	assert.NotNil(t, a.Service)
	assert.NotNil(t, a.News)
	assert.NotNil(t, a.Deployer)
	assert.NotNil(t, a.Dispatcher)
	assert.Equal(t, []string{news.SourceType}, a.Sources.Types())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuild_RejectsUnknownTransport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport = "pigeon"
	_, err := Build(cfg, zap.NewNop(), nil)
	assert.ErrorContains(t, err, "unknown transport")
}

func TestNewLocker(t *testing.T) {
	cfg := testConfig(t)
	l, err := newLocker(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &lock.FileLocker{}, l)

	cfg.LockBackend = config.LockPostgres
	l, err = newLocker(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &lock.PgAdvisoryLocker{}, l)

	cfg.LockBackend = "zookeeper"
	_, err = newLocker(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRouter_HealthWithoutPool(t *testing.T) {
	a, err := Build(testConfig(t), zap.NewNop(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
