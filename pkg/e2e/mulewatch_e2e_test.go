package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/mulewatch/pkg/api"
	"github.com/dd0wney/mulewatch/pkg/config"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/health"
	"github.com/dd0wney/mulewatch/pkg/logging"
	"github.com/dd0wney/mulewatch/pkg/metrics"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

// A batch with one tight cycle, one fan-in collector and background noise.
const investigationCSV = `transaction_id,sender_id,receiver_id,amount,timestamp
T001,ACC_A,ACC_B,9500,2026-03-01 10:00:00
T002,ACC_B,ACC_C,9400,2026-03-01 11:00:00
T003,ACC_C,ACC_D,9300,2026-03-01 12:00:00
T004,ACC_D,ACC_A,9200,2026-03-01 13:00:00
T010,ACC_M1,ACC_HUB,4000,2026-03-01 09:00:00
T011,ACC_M2,ACC_HUB,4100,2026-03-01 09:10:00
T012,ACC_M3,ACC_HUB,3900,2026-03-01 09:20:00
T013,ACC_M4,ACC_HUB,4200,2026-03-01 09:30:00
T014,ACC_M5,ACC_HUB,4050,2026-03-01 09:40:00
T101,ACC_X,ACC_Y,120,2026-03-02 10:00:00
T102,ACC_Y,ACC_Z,80,2026-03-03 10:00:00
`

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logging.NewJSONLogger(io.Discard, logging.ErrorLevel)
	eng := engine.New(engine.Options{
		Workers:       2,
		OptimizerSeed: 7,
		RingConfig:    rings.DefaultConfig(),
		Weights:       fusion.DefaultWeights(),
	}, metrics.NewRegistry(), logger)

	server, err := api.NewServer(config.Default().Server, eng, engine.NewStore(),
		health.NewChecker(), metrics.NewRegistry(), logger)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postCSV(t *testing.T, baseURL, csv string) map[string]any {
	t.Helper()

	resp, err := http.Post(baseURL+"/api/analyze", "text/csv", bytes.NewBufferString(csv))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	return report
}

// TestInvestigationWorkflow walks the full analyst journey: upload a batch,
// inspect the report, query it over GraphQL, then test takedown options.
func TestInvestigationWorkflow(t *testing.T) {
	ts := startTestServer(t)
	baseURL := ts.URL

	// Step 1: upload the transaction batch.
	report := postCSV(t, baseURL, investigationCSV)
	require.NotEmpty(t, report["run_id"])

	ringsList := report["fraud_rings"].([]any)
	require.NotEmpty(t, ringsList, "expected detected rings")

	patterns := make(map[string]bool)
	for _, r := range ringsList {
		patterns[r.(map[string]any)["pattern_type"].(string)] = true
	}
	assert.True(t, patterns["cycle"], "expected the cycle ring, got %v", patterns)

	// Step 2: the flagged accounts carry component scores and severities.
	accounts := report["suspicious_accounts"].([]any)
	require.NotEmpty(t, accounts)
	first := accounts[0].(map[string]any)
	assert.Contains(t, first, "suspicion_score")
	assert.Contains(t, first, "component_scores")

	// Accounts are ranked highest first.
	prev := 101.0
	for _, a := range accounts {
		score := a.(map[string]any)["suspicion_score"].(float64)
		assert.LessOrEqual(t, score, prev)
		prev = score
	}

	// Step 3: the same snapshot is queryable over GraphQL.
	gqlBody, _ := json.Marshal(map[string]any{
		"query": `{ summary { fraudRingsDetected } suspiciousAccounts(minScore: 70) { accountId } }`,
	})
	resp, err := http.Post(baseURL+"/graphql", "application/json", bytes.NewReader(gqlBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var gql struct {
		Data struct {
			Summary struct {
				FraudRingsDetected int `json:"fraudRingsDetected"`
			} `json:"summary"`
			SuspiciousAccounts []struct {
				AccountID string `json:"accountId"`
			} `json:"suspiciousAccounts"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gql))
	assert.Equal(t, len(ringsList), gql.Data.Summary.FraudRingsDetected)

	// Step 4: simulate a takedown of the top-ranked account.
	topAccount := accounts[0].(map[string]any)["account_id"].(string)
	whatifBody, _ := json.Marshal(map[string]any{"nodes": []string{topAccount}})
	resp, err = http.Post(baseURL+"/api/whatif", "application/json", bytes.NewReader(whatifBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var whatif map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&whatif))
	effectiveness := whatif["effectiveness_score"].(map[string]any)
	assert.NotEmpty(t, effectiveness["grade"])

	// The snapshot itself is untouched by the simulation.
	resp, err = http.Get(baseURL + "/api/download")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var downloaded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&downloaded))
	assert.Equal(t, report["run_id"], downloaded["run_id"])
}

// TestConcurrentReadsDuringAnalysis hammers the read endpoints while new
// batches replace the snapshot. Readers must always see a complete report.
func TestConcurrentReadsDuringAnalysis(t *testing.T) {
	ts := startTestServer(t)
	baseURL := ts.URL

	postCSV(t, baseURL, investigationCSV)

	var wg sync.WaitGroup
	errs := make(chan error, 32)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				resp, err := http.Get(baseURL + "/api/download")
				if err != nil {
					errs <- err
					return
				}
				var report map[string]any
				err = json.NewDecoder(resp.Body).Decode(&report)
				resp.Body.Close()
				if err != nil {
					errs <- fmt.Errorf("torn report read: %w", err)
					return
				}
				if report["run_id"] == "" {
					errs <- fmt.Errorf("incomplete report")
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 3; j++ {
			postCSV(t, baseURL, investigationCSV)
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// TestRepeatBatchFindsSameStructure verifies two runs over the same batch
// agree on ring structure and the flagged account set. The sampler stream
// advances between runs, so exact scores may wobble; the detection itself
// must not.
func TestRepeatBatchFindsSameStructure(t *testing.T) {
	ts := startTestServer(t)

	first := postCSV(t, ts.URL, investigationCSV)
	second := postCSV(t, ts.URL, investigationCSV)

	assert.NotEqual(t, first["run_id"], second["run_id"])

	ringKey := func(report map[string]any) map[string]string {
		out := make(map[string]string)
		for _, r := range report["fraud_rings"].([]any) {
			ring := r.(map[string]any)
			out[ring["ring_id"].(string)] = ring["pattern_type"].(string)
		}
		return out
	}
	assert.Equal(t, ringKey(first), ringKey(second))

	accountSet := func(report map[string]any) map[string]bool {
		out := make(map[string]bool)
		for _, a := range report["suspicious_accounts"].([]any) {
			out[a.(map[string]any)["account_id"].(string)] = true
		}
		return out
	}
	assert.Equal(t, accountSet(first), accountSet(second))
}
