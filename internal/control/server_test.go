package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bizobs/journeysim/internal/logging"
	"github.com/bizobs/journeysim/pkg/domain"
	"github.com/bizobs/journeysim/pkg/journey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore scripts the orchestration boundary for handler tests.
type fakeCore struct {
	status       domain.OrchestratorStatus
	workers      map[domain.OwnerKey]domain.WorkerInstance
	breakers     []domain.BreakerInfo
	runRecord    *domain.RunRecord
	runErr       error
	ranJourneys  []journey.Journey
	stoppedAll   int
	preservedFor [][]string
}

func (f *fakeCore) RunJourney(_ context.Context, j journey.Journey) (*domain.RunRecord, error) {
	f.ranJourneys = append(f.ranJourneys, j)
	return f.runRecord, f.runErr
}

func (f *fakeCore) Status() domain.OrchestratorStatus { return f.status }
func (f *fakeCore) Breakers() []domain.BreakerInfo    { return f.breakers }

func (f *fakeCore) Worker(owner domain.OwnerKey) (domain.WorkerInstance, error) {
	inst, ok := f.workers[owner]
	if !ok {
		return domain.WorkerInstance{}, domain.ErrWorkerNotFound
	}
	return inst, nil
}
func (f *fakeCore) StopAll()                          { f.stoppedAll++ }
func (f *fakeCore) StopNonEssential(preserve []string) {
	f.preservedFor = append(f.preservedFor, preserve)
}

// memoryStore mirrors the RecordStore contract in memory.
type memoryStore struct {
	recs map[string]*domain.RunRecord
}

func (m *memoryStore) Save(_ context.Context, rec *domain.RunRecord) error {
	m.recs[rec.ID] = rec
	return nil
}

func (m *memoryStore) Load(_ context.Context, id string) (*domain.RunRecord, error) {
	rec, ok := m.recs[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (m *memoryStore) List(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.recs))
	for id := range m.recs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	delete(m.recs, id)
	return nil
}

func newTestHandler(core Core, opts ...Option) http.Handler {
	opts = append(opts, WithLogger(logging.NewNop()))
	return NewServer(core, opts...).Handler()
}

func TestServer_Health(t *testing.T) {
	h := newTestHandler(&fakeCore{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Status(t *testing.T) {
	core := &fakeCore{
		status: domain.OrchestratorStatus{
			Ports: domain.PortStatus{
				Allocated: []domain.PortReservation{{Port: 8081, Owner: "DiscoveryService:Acme"}},
				Available: 39,
			},
			Workers: []domain.WorkerInstance{{
				Owner:       "DiscoveryService:Acme",
				ServiceName: "DiscoveryService",
				Port:        8081,
				State:       domain.WorkerReady,
			}},
		},
		breakers: []domain.BreakerInfo{{
			Owner: "DiscoveryService:Acme",
			State: domain.CircuitOpen,
		}},
	}
	h := newTestHandler(core)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Ports    domain.PortStatus       `json:"ports"`
		Services []domain.WorkerInstance `json:"services"`
		Breakers []domain.BreakerInfo    `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 39, body.Ports.Available)
	require.Len(t, body.Services, 1)
	assert.Equal(t, domain.WorkerReady, body.Services[0].State)
	require.Len(t, body.Breakers, 1)
	assert.Equal(t, domain.CircuitOpen, body.Breakers[0].State)
}

func TestServer_RunJourney(t *testing.T) {
	t.Run("runs a posted journey", func(t *testing.T) {
		core := &fakeCore{
			runRecord: &domain.RunRecord{
				ID:          "run-1",
				JourneyName: "checkout-flow",
				TotalSteps:  2,
				StartedAt:   time.Now(),
			},
		}
		h := newTestHandler(core)

		body, _ := json.Marshal(map[string]any{
			"name":    "checkout-flow",
			"company": "Acme",
			"steps":   []map[string]any{{"name": "Browse"}, {"name": "Checkout"}},
		})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/journeys/run", bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		var rec domain.RunRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, "run-1", rec.ID)
		require.Len(t, core.ranJourneys, 1)
		assert.Equal(t, "checkout-flow", core.ranJourneys[0].Name)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		h := newTestHandler(&fakeCore{})

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/journeys/run", bytes.NewReader([]byte("{nope"))))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("surfaces run errors", func(t *testing.T) {
		core := &fakeCore{runErr: assert.AnError}
		h := newTestHandler(core)

		body, _ := json.Marshal(map[string]any{"name": "j", "company": "Acme"})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/journeys/run", bytes.NewReader(body)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestServer_GetWorker(t *testing.T) {
	core := &fakeCore{workers: map[domain.OwnerKey]domain.WorkerInstance{
		"DiscoveryService:Acme": {
			Owner:       "DiscoveryService:Acme",
			ServiceName: "DiscoveryService",
			Port:        8081,
			State:       domain.WorkerReady,
		},
	}}
	h := newTestHandler(core)

	t.Run("fetches a live worker by owner key", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/workers/DiscoveryService:Acme", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var inst domain.WorkerInstance
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
		assert.Equal(t, 8081, inst.Port)
		assert.Equal(t, domain.WorkerReady, inst.State)
	})

	t.Run("unknown owner key is a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/workers/NopeService:Acme", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_StopWorkers(t *testing.T) {
	t.Run("empty body stops the non-essential workers", func(t *testing.T) {
		core := &fakeCore{}
		h := newTestHandler(core)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/workers/stop", bytes.NewReader(nil)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, core.stoppedAll)
		require.Len(t, core.preservedFor, 1)
		assert.Empty(t, core.preservedFor[0])
	})

	t.Run("all flag clears everything", func(t *testing.T) {
		core := &fakeCore{}
		h := newTestHandler(core)

		body, _ := json.Marshal(stopRequest{All: true})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/workers/stop", bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, core.stoppedAll)
		assert.Empty(t, core.preservedFor)
	})

	t.Run("preserve list keeps named services", func(t *testing.T) {
		core := &fakeCore{}
		h := newTestHandler(core)

		body, _ := json.Marshal(stopRequest{Preserve: []string{"DiscoveryService"}})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/workers/stop", bytes.NewReader(body)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, core.stoppedAll)
		require.Len(t, core.preservedFor, 1)
		assert.Equal(t, []string{"DiscoveryService"}, core.preservedFor[0])
	})
}

func TestServer_Runs(t *testing.T) {
	store := &memoryStore{recs: map[string]*domain.RunRecord{
		"run-1": {ID: "run-1", JourneyName: "checkout-flow"},
	}}
	h := newTestHandler(&fakeCore{}, WithRecordStore(store))

	t.Run("lists run ids", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string][]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, []string{"run-1"}, body["runs"])
	})

	t.Run("fetches one run", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var rec domain.RunRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, "checkout-flow", rec.JourneyName)
	})

	t.Run("unknown run is a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("endpoints are absent without a store", func(t *testing.T) {
		bare := newTestHandler(&fakeCore{})
		w := httptest.NewRecorder()
		bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
