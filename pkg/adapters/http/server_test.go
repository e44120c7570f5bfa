package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/aretw0/strata/pkg/adapters/http"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/materialize"
)

type fixture struct {
	srv    *httptest.Server
	api    *api.Server
	root   domain.LayerID
	moved  domain.LayerID
	broken domain.LayerID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewLayerStore()
	root, err := store.Append(ctx, domain.NoLayer, domain.Fill{Structure: domain.Structure{
		Title: "argon",
		Atoms: []domain.Atom{{Element: 18}},
	}})
	require.NoError(t, err)
	moved, err := store.Append(ctx, root, domain.Translation{Select: domain.SelectAll(), Vector: domain.Vec3{1, 2, 3}})
	require.NoError(t, err)
	broken, err := store.Append(ctx, root, domain.SetCenter{Select: domain.SelectID("missing")})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	c, err := cache.New(materialize.New(store), cache.Options{Size: 8, Registerer: reg})
	require.NoError(t, err)

	runs := memory.NewStore()
	state := domain.NewRunState("run-1")
	state.Tips[domain.DefaultModel] = moved
	require.NoError(t, runs.Save(ctx, "run-1", state))

	s := api.NewServer(store, c, api.WithRunStore(runs), api.WithGatherer(reg), api.WithVersion("test"))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, api: s, root: root, moved: moved, broken: broken}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Layers(t *testing.T) {
	f := newFixture(t)

	var layer domain.Layer
	require.Equal(t, http.StatusOK, f.get(t, "/layers/2", &layer))
	assert.Equal(t, f.root, layer.Parent)
	assert.Equal(t, domain.KindTranslation, layer.Operation.Kind())

	var kids []domain.LayerID
	require.Equal(t, http.StatusOK, f.get(t, "/layers/1/children", &kids))
	assert.Equal(t, []domain.LayerID{f.moved, f.broken}, kids)

	var chain []domain.Layer
	require.Equal(t, http.StatusOK, f.get(t, "/layers/2/chain", &chain))
	require.Len(t, chain, 2)
	assert.Equal(t, f.root, chain[0].ID)

	var st domain.Structure
	require.Equal(t, http.StatusOK, f.get(t, "/layers/2/structure", &st))
	assert.Equal(t, domain.Vec3{1, 2, 3}, st.Atoms[0].Position)

	var info struct {
		Version string `json:"version"`
		Layers  int    `json:"layers"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/info", &info))
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, 3, info.Layers)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	var body struct {
		Error string `json:"error"`
	}
	assert.Equal(t, http.StatusNotFound, f.get(t, "/layers/99", &body))
	assert.Contains(t, body.Error, "not found")
	assert.Equal(t, http.StatusNotFound, f.get(t, "/layers/99/structure", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/layers/abc", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/layers/0/chain", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, f.get(t, "/layers/3/structure", &body))
	assert.Contains(t, body.Error, "missing")
	assert.Equal(t, http.StatusNotFound, f.get(t, "/runs/ghost", nil))
}

func TestServer_Runs(t *testing.T) {
	f := newFixture(t)
	var runs []string
	require.Equal(t, http.StatusOK, f.get(t, "/runs", &runs))
	assert.Equal(t, []string{"run-1"}, runs)

	var state domain.RunState
	require.Equal(t, http.StatusOK, f.get(t, "/runs/run-1", &state))
	assert.Equal(t, f.moved, state.Tips[domain.DefaultModel])
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.get(t, "/layers/2/structure", nil))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "strata_cache_misses_total 1")
}

func TestServer_RunEvents(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/runs/run-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	require.Eventually(t, func() bool { return f.api.Streams().Subscribers("run-1") == 1 }, time.Second, 10*time.Millisecond)
	hooks := f.api.Streams().Hooks()
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
		EventBase:  domain.EventBase{Type: domain.EventCheckpoint, RunID: "run-1"},
		Checkpoint: domain.Checkpoint{Name: "ckpt1", Layer: f.moved},
	})
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
		EventBase: domain.EventBase{Type: domain.EventCheckpoint, RunID: "other-run"},
	})

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {\"timestamp") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	assert.Contains(t, data, `"name":"ckpt1"`)
	assert.NotContains(t, data, "other-run")
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
