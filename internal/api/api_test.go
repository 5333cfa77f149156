package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/alerts"
	"github.com/opensource-finance/osprey-risk/internal/baseline"
	"github.com/opensource-finance/osprey-risk/internal/bus"
	"github.com/opensource-finance/osprey-risk/internal/cache"
	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/ensemble"
	"github.com/opensource-finance/osprey-risk/internal/explain"
	"github.com/opensource-finance/osprey-risk/internal/features"
	"github.com/opensource-finance/osprey-risk/internal/repository"
	"github.com/opensource-finance/osprey-risk/internal/scoring"
	"github.com/opensource-finance/osprey-risk/internal/velocity"
)

const testTenant = "tenant-001"

// createTestServer wires the full scoring stack over a temp SQLite database.
func createTestServer(t *testing.T) (*Server, Deps) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	lru := cache.NewLRUCache(100)
	fcfg := domain.DefaultFeatureConfig()
	history := velocity.NewService(fcfg, repo, nil)
	baselines := baseline.NewService(repo, lru, time.Minute, fcfg.BaselineWindow, nil)
	assembler := features.NewAssembler(fcfg, history, baselines, nil)

	ens, err := ensemble.New(nil, nil, domain.DefaultEnsembleWeights(), time.Second, nil)
	if err != nil {
		t.Fatalf("ensemble.New failed: %v", err)
	}
	costs, err := decision.NewCostStore(domain.DefaultCostMatrix())
	if err != nil {
		t.Fatalf("NewCostStore failed: %v", err)
	}
	thresholds, err := decision.NewThresholdStore(0.3, 0.7, costs.Current().Version)
	if err != nil {
		t.Fatalf("NewThresholdStore failed: %v", err)
	}
	alertSvc := alerts.NewService(repo, nil)
	explainer := explain.NewGenerator(domain.ExplainConfig{TopK: 3, Permutations: 4, Timeout: time.Second}, nil)

	processor := scoring.NewProcessor(assembler, ens, decision.NewClassifier(domain.DecisionConfig{}), thresholds, explainer, nil,
		scoring.WithStore(repo),
		scoring.WithAlerts(alertSvc),
		scoring.WithBus(eventBus),
	)

	deps := Deps{
		Scorer:     processor,
		Repo:       repo,
		Cache:      lru,
		Bus:        eventBus,
		Alerts:     alertSvc,
		Baselines:  baselines,
		Ensemble:   ens,
		Thresholds: thresholds,
		Costs:      costs,
		Calibrator: decision.NewCalibrator(thresholds, costs, nil),
		Version:    "test-v1",
	}
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, deps), deps
}

func doRequest(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TenantIDHeader, testTenant)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func scoreRequest(id string) domain.ScoreRequest {
	return domain.ScoreRequest{
		ID:         id,
		UserID:     "user-001",
		MerchantID: "merchant-001",
		DeviceID:   "device-001",
		Amount:     120.50,
		Currency:   "USD",
		Timestamp:  time.Now().UTC(),
		Location:   &domain.Location{Lat: 40.7128, Lon: -74.0060, Country: "US"},
	}
}

func TestScoreEndpoint(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreRequest("tx-001"))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.TxID != "tx-001" {
			t.Errorf("expected transactionId tx-001, got %s", resp.TxID)
		}
		if resp.ResultID == "" {
			t.Error("expected resultId in response")
		}
		if resp.FraudScore < 0 || resp.FraudScore > 1 {
			t.Errorf("expected score in [0,1], got %v", resp.FraudScore)
		}
		if resp.ThresholdSnapshotID == "" {
			t.Error("expected thresholdSnapshotId in response")
		}
		if resp.ExplanationText == "" {
			t.Error("expected explanationText in response")
		}
	})

	t.Run("GeneratedTransactionID", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreRequest(""))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp domain.ScoreResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.TxID == "" {
			t.Error("expected a generated transactionId")
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingUserID", func(t *testing.T) {
		req := scoreRequest("tx-nouser")
		req.UserID = ""
		rr := doRequest(server, http.MethodPost, "/score", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		req := scoreRequest("tx-negative")
		req.Amount = -100
		rr := doRequest(server, http.MethodPost, "/score", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/score", scoreRequest("tx-headers"))
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID header")
		}
		if rr.Header().Get(TraceIDHeader) == "" {
			t.Error("expected X-Trace-ID header")
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
	})

	t.Run("TransactionAndResultPersisted", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/transactions/tx-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var tx domain.Transaction
		json.Unmarshal(rr.Body.Bytes(), &tx)
		if tx.UserID != "user-001" {
			t.Errorf("expected userId user-001, got %s", tx.UserID)
		}

		rr = doRequest(server, http.MethodGet, "/results/tx-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result domain.ScoringResult
		json.Unmarshal(rr.Body.Bytes(), &result)
		if result.TxID != "tx-001" {
			t.Errorf("expected txId tx-001, got %s", result.TxID)
		}
		if result.Features == nil {
			t.Error("expected features to be stored with the result")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if rr := doRequest(server, http.MethodGet, "/transactions/missing", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
		if rr := doRequest(server, http.MethodGet, "/results/missing", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestAlertWorkflow(t *testing.T) {
	server, deps := createTestServer(t)

	// Every score lands in [0,1), so everything is sent to review.
	if _, err := deps.Thresholds.Publish(0, 1, "test", decision.SourceAdmin); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	for _, id := range []string{"tx-a", "tx-b"} {
		if rr := doRequest(server, http.MethodPost, "/score", scoreRequest(id)); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	}

	var pending struct {
		Alerts []domain.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	rr := doRequest(server, http.MethodGet, "/alerts/pending", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	json.Unmarshal(rr.Body.Bytes(), &pending)
	if pending.Count != 2 {
		t.Fatalf("expected 2 pending alerts, got %d", pending.Count)
	}
	if pending.Alerts[0].Explanation == "" {
		t.Error("expected alert explanation")
	}

	alertID := pending.Alerts[0].ID

	t.Run("ReviewRequiresAnalyst", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alerts/"+alertID+"/review", domain.AlertReview{Decision: domain.VerdictConfirmedFraud})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Review", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alerts/"+alertID+"/review", domain.AlertReview{
			AnalystID: "analyst-7",
			Decision:  domain.VerdictConfirmedFraud,
			Notes:     "card testing",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var alert domain.Alert
		json.Unmarshal(rr.Body.Bytes(), &alert)
		if alert.Status != domain.AlertReviewed {
			t.Errorf("expected status reviewed, got %s", alert.Status)
		}

		// Reviewing twice is rejected.
		rr = doRequest(server, http.MethodPost, "/alerts/"+alertID+"/review", domain.AlertReview{
			AnalystID: "analyst-7",
			Decision:  domain.VerdictLegitimate,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResolveMissing", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alerts/missing/resolve", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts/stats", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var stats domain.AlertStats
		json.Unmarshal(rr.Body.Bytes(), &stats)
		if stats.Total != 2 || stats.Pending != 1 || stats.Reviewed != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}

		rr = doRequest(server, http.MethodGet, "/stats", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var overview StatsResponse
		json.Unmarshal(rr.Body.Bytes(), &overview)
		if overview.Alerts == nil || overview.Alerts.Total != 2 {
			t.Errorf("expected alert stats in overview, got %+v", overview.Alerts)
		}
		if overview.ModelVersion == "" {
			t.Error("expected model version in overview")
		}
	})

	t.Run("ListFilter", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alerts?status=reviewed", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var list struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &list)
		if list.Count != 1 {
			t.Errorf("expected 1 reviewed alert, got %d", list.Count)
		}

		if rr := doRequest(server, http.MethodGet, "/alerts?limit=abc", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad limit, got %d", rr.Code)
		}
	})
}

func TestConfigEndpoints(t *testing.T) {
	server, deps := createTestServer(t)

	t.Run("GetConfig", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/config", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var cfg ConfigResponse
		json.Unmarshal(rr.Body.Bytes(), &cfg)
		if cfg.Thresholds == nil || cfg.Thresholds.Approve != 0.3 || cfg.Thresholds.Block != 0.7 {
			t.Errorf("unexpected thresholds %+v", cfg.Thresholds)
		}
		if cfg.Costs.FalseNegativeCost != 1000 {
			t.Errorf("expected default costs, got %+v", cfg.Costs)
		}
	})

	t.Run("InvalidThresholdsRejected", func(t *testing.T) {
		before := deps.Thresholds.Current().ID
		rr := doRequest(server, http.MethodPut, "/config/thresholds", map[string]float64{
			"approveThreshold": 0.8,
			"blockThreshold":   0.4,
		})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
		if deps.Thresholds.Current().ID != before {
			t.Error("expected prior thresholds to be kept")
		}
	})

	t.Run("MissingThresholdField", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/thresholds", map[string]float64{"approveThreshold": 0.2})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UpdateThresholds", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/thresholds", map[string]float64{
			"approveThreshold": 0.25,
			"blockThreshold":   0.75,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := deps.Thresholds.Current(); got.Approve != 0.25 || got.Block != 0.75 {
			t.Errorf("expected 0.25/0.75, got %v/%v", got.Approve, got.Block)
		}
	})

	t.Run("InvalidWeightsRejected", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/weights", domain.EnsembleWeights{Unsupervised: 0.6, Supervised: 0.6})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("UpdateWeights", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/weights", domain.EnsembleWeights{Unsupervised: 0.5, Supervised: 0.5})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if w := deps.Ensemble.Snapshot().Weights(); w.Unsupervised != 0.5 {
			t.Errorf("expected 0.5, got %v", w.Unsupervised)
		}
	})

	t.Run("InvalidCostsRejected", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/costs", domain.CostMatrix{FalsePositiveCost: -1, FalseNegativeCost: 10})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("UpdateCosts", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/config/costs", domain.CostMatrix{FalsePositiveCost: 20, FalseNegativeCost: 500, ReviewCost: 2, Version: "q3"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if deps.Costs.Current().Version != "q3" {
			t.Errorf("expected version q3, got %s", deps.Costs.Current().Version)
		}
	})
}

func TestModelEndpoints(t *testing.T) {
	server, deps := createTestServer(t)

	t.Run("ListModels", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/models", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp ModelsResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Models) != 2 {
			t.Errorf("expected 2 models, got %d", len(resp.Models))
		}
	})

	t.Run("UnknownRole", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/models/oracle", map[string]string{"kind": ensemble.KindHeuristicAnomaly})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidArtifactRejected", func(t *testing.T) {
		before := deps.Ensemble.Snapshot().Version()
		rr := doRequest(server, http.MethodPost, "/models/supervised", map[string]string{"kind": "random_forest"})
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
		if deps.Ensemble.Snapshot().Version() != before {
			t.Error("expected serving model to be kept")
		}
	})

	t.Run("SwapModel", func(t *testing.T) {
		artifact := map[string]any{
			"kind":    ensemble.KindLogistic,
			"version": "lr-2",
			"params": map[string]any{
				"intercept":    -2.0,
				"coefficients": map[string]float64{domain.FeatureTxCount1m: 0.5},
			},
		}
		rr := doRequest(server, http.MethodPost, "/models/supervised", artifact)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if !strings.HasSuffix(deps.Ensemble.Snapshot().Version(), "+lr-2") {
			t.Errorf("expected supervised version lr-2, got %s", deps.Ensemble.Snapshot().Version())
		}
	})
}

func TestCalibrateEndpoint(t *testing.T) {
	server, deps := createTestServer(t)

	t.Run("NoSamples", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/calibrate", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("WithSamples", func(t *testing.T) {
		before := deps.Thresholds.Current().ID
		req := CalibrateRequest{
			Samples: []domain.LabeledScore{
				{Score: 0.05}, {Score: 0.1}, {Score: 0.15}, {Score: 0.2},
				{Score: 0.6, IsFraud: true}, {Score: 0.85, IsFraud: true}, {Score: 0.9, IsFraud: true},
			},
		}
		rr := doRequest(server, http.MethodPost, "/calibrate", req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var report decision.CalibrationReport
		json.Unmarshal(rr.Body.Bytes(), &report)
		if report.Samples != 7 || report.Frauds != 3 {
			t.Errorf("unexpected report %+v", report)
		}
		if deps.Thresholds.Current().ID == before {
			t.Error("expected new thresholds to be published")
		}
		if report.Approve > report.Block {
			t.Errorf("expected approve <= block, got %v > %v", report.Approve, report.Block)
		}
	})

	t.Run("InvalidCostOverride", func(t *testing.T) {
		req := CalibrateRequest{
			Samples: []domain.LabeledScore{{Score: 0.1}, {Score: 0.9, IsFraud: true}},
			Costs:   &domain.CostMatrix{FalseNegativeCost: -5},
		}
		rr := doRequest(server, http.MethodPost, "/calibrate", req)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})
}

func TestBaselineRecompute(t *testing.T) {
	server, _ := createTestServer(t)

	for i, amount := range []float64{10, 20, 30} {
		req := scoreRequest("tx-base-" + string(rune('a'+i)))
		req.Amount = amount
		if rr := doRequest(server, http.MethodPost, "/score", req); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	}

	rr := doRequest(server, http.MethodPost, "/baselines/user-001/recompute", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var b domain.UserBaseline
	json.Unmarshal(rr.Body.Bytes(), &b)
	if b.SampleCount != 3 || b.Mean != 20 || b.Median != 20 {
		t.Errorf("unexpected baseline %+v", b)
	}
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %v", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %v", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		doRequest(server, http.MethodGet, "/config", nil)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `osprey_risk_http_requests_total{method="GET",route="/config",status="2xx"}`) {
			t.Error("expected route-labeled request metric")
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/score", nil)
		req.Header.Set("Origin", "https://console.example.com")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://console.example.com" {
			t.Error("expected origin to be echoed")
		}
	})
}
