package graphql

import (
	"encoding/json"
	"testing"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/mulewatch/pkg/disruption"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

func testAnalysis() *engine.Analysis {
	return &engine.Analysis{
		Report: &engine.Report{
			RunID: "run-7",
			FraudRings: []rings.Ring{
				{ID: "RING_001", Members: []string{"ACC_A", "ACC_B"}, Pattern: rings.PatternCycle, RiskScore: 84.5},
				{ID: "RING_002", Members: []string{"ACC_C"}, Pattern: rings.PatternFanIn, RiskScore: 55},
			},
			SuspiciousAccounts: []fusion.SuspiciousAccount{
				{AccountID: "ACC_A", SuspicionScore: 83.6, RingID: "RING_001", Severity: "high",
					DetectedPatterns: []string{"cycle"},
					Components:       fusion.ComponentScores{Graph: 80, ML: 90, Quantum: 82}},
				{AccountID: "ACC_B", SuspicionScore: 45.2, RingID: "RING_001", Severity: "medium",
					DetectedPatterns: []string{"cycle"}},
			},
			Summary: fusion.Summary{
				TotalAccountsAnalyzed:     50,
				SuspiciousAccountsFlagged: 2,
				FraudRingsDetected:        2,
				ProcessingTimeSeconds:     0.8,
			},
			Disruption: &disruption.Report{
				Strategies: []disruption.Strategy{
					{RingID: "RING_001", MemberCount: 2, CriticalNodes: []string{"ACC_A"},
						BestSingleNode: "ACC_A", MaxDisruptionPct: 50},
				},
				GlobalSummary: disruption.GlobalSummary{
					UniqueCriticalNodes:    1,
					AvgDisruptionPotential: 50,
					NetworkResilienceScore: 92.5,
				},
			},
		},
	}
}

func latestWith(analysis *engine.Analysis) LatestFunc {
	return func() (*engine.Analysis, bool) {
		if analysis == nil {
			return nil, false
		}
		return analysis, true
	}
}

func mustSchema(t *testing.T, latest LatestFunc) graphql.Schema {
	t.Helper()
	schema, err := GenerateSchema(latest)
	if err != nil {
		t.Fatalf("GenerateSchema failed: %v", err)
	}
	return schema
}

// execute runs a query and returns its data round-tripped through JSON, so
// assertions see the same types a client would.
func execute(t *testing.T, schema graphql.Schema, query string) map[string]any {
	t.Helper()

	result := ExecuteQuery(query, schema)
	if len(result.Errors) > 0 {
		t.Fatalf("Unexpected errors: %v", result.Errors)
	}

	raw, err := json.Marshal(result.Data)
	if err != nil {
		t.Fatalf("Bad result data: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("Bad result data: %v", err)
	}
	return data
}

func TestQuery_Summary(t *testing.T) {
	schema := mustSchema(t, latestWith(testAnalysis()))

	data := execute(t, schema, `{ runId summary { fraudRingsDetected suspiciousAccountsFlagged } }`)
	if data["runId"] != "run-7" {
		t.Errorf("runId = %v", data["runId"])
	}
	summary := data["summary"].(map[string]any)
	if summary["fraudRingsDetected"].(float64) != 2 {
		t.Errorf("fraudRingsDetected = %v", summary["fraudRingsDetected"])
	}
}

func TestQuery_RingByID(t *testing.T) {
	schema := mustSchema(t, latestWith(testAnalysis()))

	data := execute(t, schema, `{ ring(ringId: "RING_001") { ringId patternType riskScore memberAccounts } }`)
	ring := data["ring"].(map[string]any)
	if ring["patternType"] != "cycle" {
		t.Errorf("patternType = %v", ring["patternType"])
	}
	if ring["riskScore"].(float64) != 84.5 {
		t.Errorf("riskScore = %v", ring["riskScore"])
	}
	if len(ring["memberAccounts"].([]any)) != 2 {
		t.Errorf("memberAccounts = %v", ring["memberAccounts"])
	}
}

func TestQuery_AccountsFilteredByScore(t *testing.T) {
	schema := mustSchema(t, latestWith(testAnalysis()))

	data := execute(t, schema, `{ suspiciousAccounts(minScore: 70) { accountId severity componentScores { quantum } } }`)
	accounts := data["suspiciousAccounts"].([]any)
	if len(accounts) != 1 {
		t.Fatalf("Expected 1 account above 70, got %d", len(accounts))
	}
	acc := accounts[0].(map[string]any)
	if acc["accountId"] != "ACC_A" || acc["severity"] != "high" {
		t.Errorf("Unexpected account: %v", acc)
	}
	if acc["componentScores"].(map[string]any)["quantum"].(float64) != 82 {
		t.Errorf("Unexpected component scores: %v", acc["componentScores"])
	}
}

func TestQuery_Disruption(t *testing.T) {
	schema := mustSchema(t, latestWith(testAnalysis()))

	data := execute(t, schema, `{ disruption { networkResilienceScore uniqueCriticalNodes strategies { ringId bestSingleNode maxDisruptionPct } } }`)
	d := data["disruption"].(map[string]any)
	if d["networkResilienceScore"].(float64) != 92.5 {
		t.Errorf("networkResilienceScore = %v", d["networkResilienceScore"])
	}
	strategies := d["strategies"].([]any)
	if len(strategies) != 1 {
		t.Fatalf("Expected 1 strategy, got %d", len(strategies))
	}
	st := strategies[0].(map[string]any)
	if st["ringId"] != "RING_001" || st["bestSingleNode"] != "ACC_A" {
		t.Errorf("Unexpected strategy: %v", st)
	}
}

func TestQuery_NoAnalysisYet(t *testing.T) {
	schema := mustSchema(t, latestWith(nil))

	data := execute(t, schema, `{ health runId fraudRings { ringId } }`)
	if data["health"] != "ok" {
		t.Errorf("health = %v", data["health"])
	}
	if data["runId"] != nil {
		t.Errorf("runId should be null before any run, got %v", data["runId"])
	}
	if len(data["fraudRings"].([]any)) != 0 {
		t.Errorf("fraudRings should be empty, got %v", data["fraudRings"])
	}
}

func TestQuery_SyntaxErrorReported(t *testing.T) {
	schema := mustSchema(t, latestWith(nil))

	result := ExecuteQuery(`{ runId`, schema)
	if len(result.Errors) == 0 {
		t.Fatal("Expected a parse error for an unterminated query")
	}
}

func TestExecuteQueryWithVariables(t *testing.T) {
	schema := mustSchema(t, latestWith(testAnalysis()))

	result := ExecuteQueryWithVariables(
		`query Ring($id: ID!) { ring(ringId: $id) { patternType } }`,
		schema,
		map[string]any{"id": "RING_002"},
	)
	if len(result.Errors) > 0 {
		t.Fatalf("Unexpected errors: %v", result.Errors)
	}
	ring := result.Data.(map[string]any)["ring"].(map[string]any)
	if ring["patternType"] != "fan_in" {
		t.Errorf("patternType = %v", ring["patternType"])
	}
}
