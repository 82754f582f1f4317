package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/sequence-service/internal/blockstore"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/generator"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/incrementer"
	"github.com/weiawesome/wes-io-live/sequence-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/log"
	"github.com/weiawesome/wes-io-live/sequence-service/pkg/response"
)

type fixture struct {
	router *gin.Engine
	reg    *prometheus.Registry
	store  *blockstore.FileStore
	seq    *incrementer.Incrementer
}

func newSequence(t *testing.T, alwaysOpen bool) (*incrementer.Incrementer, *blockstore.FileStore) {
	t.Helper()
	store, err := blockstore.NewFileStore(blockstore.FileConfig{Path: t.TempDir(), AlwaysOpen: alwaysOpen})
	require.NoError(t, err)
	inc := incrementer.NewSequence(store, incrementer.Options{BlockSize: 10, Delta: 1, PaddingLength: 4})
	require.NoError(t, inc.Init(context.Background()))
	t.Cleanup(func() { inc.Close() })
	return inc, store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	seq, _ := newSequence(t, true)
	broken, brokenStore := newSequence(t, false)
	closed, _ := newSequence(t, true)
	require.NoError(t, closed.Close())

	registry := generator.NewRegistry()
	registry.Register(generator.KindSequence, generator.NewBlockGenerator(seq))
	registry.Register("broken", generator.NewBlockGenerator(broken))
	registry.Register("closed", generator.NewBlockGenerator(closed))
	registry.Register(generator.KindULID, generator.NewULIDGenerator(seq))
	registry.Register(generator.KindProcess, generator.NewProcessGenerator(generator.NewProcessIdentity(time.Now())))

	reg := prometheus.NewRegistry()

	r := gin.New()
	r.Use(log.GinMiddleware(zerolog.Nop()))
	NewHandler(registry, metrics.New(reg)).RegisterRoutes(r)

	return &fixture{router: r, reg: reg, store: brokenStore, seq: seq}
}

func (f *fixture) get(t *testing.T, path string) (int, response.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)

	var resp response.Response
	if path != "/health" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func data(t *testing.T, resp response.Response, out any) {
	t.Helper()
	b, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

func TestHealth(t *testing.T) {
	f := setup(t)
	code, _ := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
}

func TestGenerate(t *testing.T) {
	f := setup(t)

	code, resp := f.get(t, "/api/v1/ids/sequence")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	var got GenerateResponse
	data(t, resp, &got)
	assert.Equal(t, GenerateResponse{Kind: "sequence", ID: "0001"}, got)

	code, resp = f.get(t, "/api/v1/ids/process")
	require.Equal(t, http.StatusOK, code)
	data(t, resp, &got)
	assert.Len(t, got.ID, 32)

	code, resp = f.get(t, "/api/v1/ids/ulid")
	require.Equal(t, http.StatusOK, code)
	data(t, resp, &got)
	assert.Len(t, got.ID, 26)
	assert.Equal(t, uint64(2), f.seq.CurrentValue(), "ulid draws from the sequence counter")

	assert.Equal(t, float64(1), f.issued(t, "sequence"))
	assert.Equal(t, float64(1), f.issued(t, "process"))
	assert.Equal(t, float64(1), f.issued(t, "ulid"))
}

func (f *fixture) issued(t *testing.T, kind string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "ids_issued_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "kind" && lp.GetValue() == kind {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestGenerate_UnknownKind(t *testing.T) {
	f := setup(t)

	code, resp := f.get(t, "/api/v1/ids/snowflake")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGenerate_Closed(t *testing.T) {
	f := setup(t)

	code, resp := f.get(t, "/api/v1/ids/closed")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
}

func TestGenerateBatch(t *testing.T) {
	f := setup(t)

	code, resp := f.get(t, "/api/v1/ids/sequence/batch?count=12")
	require.Equal(t, http.StatusOK, code)

	var got BatchResponse
	data(t, resp, &got)
	require.Len(t, got.IDs, 12)
	assert.Equal(t, "0001", got.IDs[0])
	assert.Equal(t, "0012", got.IDs[11])
	assert.Equal(t, uint64(12), f.seq.CurrentValue())

	for _, q := range []string{"", "?count=0", "?count=1001", "?count=abc"} {
		code, resp := f.get(t, "/api/v1/ids/sequence/batch"+q)
		assert.Equal(t, http.StatusBadRequest, code, q)
		require.NotNil(t, resp.Error, q)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	}
}

func TestGenerateBatch_UnknownKind(t *testing.T) {
	f := setup(t)

	for _, q := range []string{"", "?count=0", "?count=5"} {
		code, resp := f.get(t, "/api/v1/ids/snowflake/batch"+q)
		assert.Equal(t, http.StatusNotFound, code, q)
		require.NotNil(t, resp.Error, q)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code, q)
	}
}

func TestGenerateBatch_StorageError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("open files cannot be removed on windows")
	}
	f := setup(t)
	require.NoError(t, os.RemoveAll(filepath.Dir(f.store.Path())))

	// The first block is still in memory; the eleventh id needs a new one.
	code, resp := f.get(t, "/api/v1/ids/broken/batch?count=11")
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}

func TestValidateAndParse(t *testing.T) {
	f := setup(t)
	f.get(t, "/api/v1/ids/sequence/batch?count=3")

	code, resp := f.get(t, "/api/v1/ids/sequence/validate/0002")
	require.Equal(t, http.StatusOK, code)
	var v ValidateResponse
	data(t, resp, &v)
	assert.True(t, v.Valid)

	_, resp = f.get(t, "/api/v1/ids/sequence/validate/0009")
	v = ValidateResponse{}
	data(t, resp, &v)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Reason)

	_, resp = f.get(t, "/api/v1/ids/sequence/parse/0003")
	var p ParseResponse
	data(t, resp, &p)
	assert.True(t, p.Valid)
	require.NotNil(t, p.ParseResult)
	assert.Equal(t, uint64(3), p.Value)

	_, resp = f.get(t, "/api/v1/ids/sequence/parse/abc")
	p = ParseResponse{}
	data(t, resp, &p)
	assert.False(t, p.Valid)
	assert.NotEmpty(t, p.ErrorMessage)
}

func TestCurrent(t *testing.T) {
	f := setup(t)
	f.get(t, "/api/v1/ids/sequence/batch?count=5")

	code, resp := f.get(t, "/api/v1/sequences/sequence/current")
	require.Equal(t, http.StatusOK, code)
	var got CurrentResponse
	data(t, resp, &got)
	assert.Equal(t, CurrentResponse{Kind: "sequence", CurrentValue: 5}, got)

	code, _ = f.get(t, "/api/v1/sequences/process/current")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.get(t, "/api/v1/sequences/nope/current")
	assert.Equal(t, http.StatusNotFound, code)
}
