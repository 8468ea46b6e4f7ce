// Package graphql exposes the latest analysis result as a read-only GraphQL
// endpoint, for investigation tooling that wants selective field access
// instead of the full report download.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/mulewatch/pkg/disruption"
	"github.com/dd0wney/mulewatch/pkg/engine"
	"github.com/dd0wney/mulewatch/pkg/fusion"
	"github.com/dd0wney/mulewatch/pkg/rings"
)

// LatestFunc returns the current analysis snapshot, if one exists.
type LatestFunc func() (*engine.Analysis, bool)

var componentScoresType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ComponentScores",
	Fields: graphql.Fields{
		"graph":   &graphql.Field{Type: graphql.Float},
		"ml":      &graphql.Field{Type: graphql.Float},
		"quantum": &graphql.Field{Type: graphql.Float},
	},
})

var ringType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Ring",
	Fields: graphql.Fields{
		"ringId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(rings.Ring).ID, nil
			},
		},
		"memberAccounts": &graphql.Field{
			Type: graphql.NewList(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(rings.Ring).Members, nil
			},
		},
		"patternType": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return string(p.Source.(rings.Ring).Pattern), nil
			},
		},
		"riskScore": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(rings.Ring).RiskScore, nil
			},
		},
	},
})

var suspiciousAccountType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SuspiciousAccount",
	Fields: graphql.Fields{
		"accountId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.SuspiciousAccount).AccountID, nil
			},
		},
		"suspicionScore": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.SuspiciousAccount).SuspicionScore, nil
			},
		},
		"detectedPatterns": &graphql.Field{
			Type: graphql.NewList(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.SuspiciousAccount).DetectedPatterns, nil
			},
		},
		"ringId": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.SuspiciousAccount).RingID, nil
			},
		},
		"severity": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.SuspiciousAccount).Severity, nil
			},
		},
		"componentScores": &graphql.Field{
			Type: componentScoresType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				c := p.Source.(fusion.SuspiciousAccount).Components
				return map[string]interface{}{
					"graph":   c.Graph,
					"ml":      c.ML,
					"quantum": c.Quantum,
				}, nil
			},
		},
	},
})

var strategyType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DisruptionStrategy",
	Fields: graphql.Fields{
		"ringId": &graphql.Field{
			Type: graphql.NewNonNull(graphql.ID),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(disruption.Strategy).RingID, nil
			},
		},
		"criticalNodes": &graphql.Field{
			Type: graphql.NewList(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(disruption.Strategy).CriticalNodes, nil
			},
		},
		"bestSingleNode": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(disruption.Strategy).BestSingleNode, nil
			},
		},
		"maxDisruptionPct": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(disruption.Strategy).MaxDisruptionPct, nil
			},
		},
	},
})

var disruptionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Disruption",
	Fields: graphql.Fields{
		"strategies": &graphql.Field{
			Type: graphql.NewList(strategyType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*disruption.Report).Strategies, nil
			},
		},
		"uniqueCriticalNodes": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*disruption.Report).GlobalSummary.UniqueCriticalNodes, nil
			},
		},
		"avgDisruptionPotential": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*disruption.Report).GlobalSummary.AvgDisruptionPotential, nil
			},
		},
		"networkResilienceScore": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*disruption.Report).GlobalSummary.NetworkResilienceScore, nil
			},
		},
		"articulationPointCount": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(*disruption.Report).NetworkStats.ArticulationPointCount, nil
			},
		},
	},
})

var summaryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Summary",
	Fields: graphql.Fields{
		"totalAccountsAnalyzed": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.Summary).TotalAccountsAnalyzed, nil
			},
		},
		"suspiciousAccountsFlagged": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.Summary).SuspiciousAccountsFlagged, nil
			},
		},
		"fraudRingsDetected": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.Summary).FraudRingsDetected, nil
			},
		},
		"processingTimeSeconds": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(fusion.Summary).ProcessingTimeSeconds, nil
			},
		},
	},
})

// GenerateSchema builds the read-only query schema over the latest analysis.
func GenerateSchema(latest LatestFunc) (graphql.Schema, error) {
	queryFields := graphql.Fields{
		"health": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "ok", nil
			},
		},
		"runId": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return nil, nil
				}
				return analysis.Report.RunID, nil
			},
		},
		"summary": &graphql.Field{
			Type: summaryType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return nil, nil
				}
				return analysis.Report.Summary, nil
			},
		},
		"fraudRings": &graphql.Field{
			Type: graphql.NewList(ringType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return []rings.Ring{}, nil
				}
				return analysis.Report.FraudRings, nil
			},
		},
		"ring": &graphql.Field{
			Type: ringType,
			Args: graphql.FieldConfigArgument{
				"ringId": &graphql.ArgumentConfig{
					Type: graphql.NewNonNull(graphql.ID),
				},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return nil, nil
				}
				id := p.Args["ringId"].(string)
				for _, r := range analysis.Report.FraudRings {
					if r.ID == id {
						return r, nil
					}
				}
				return nil, nil
			},
		},
		"suspiciousAccounts": &graphql.Field{
			Type: graphql.NewList(suspiciousAccountType),
			Args: graphql.FieldConfigArgument{
				"minScore": &graphql.ArgumentConfig{
					Type: graphql.Float,
				},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return []fusion.SuspiciousAccount{}, nil
				}
				accounts := analysis.Report.SuspiciousAccounts
				minScore, hasMin := p.Args["minScore"].(float64)
				if !hasMin {
					return accounts, nil
				}
				filtered := make([]fusion.SuspiciousAccount, 0, len(accounts))
				for _, sa := range accounts {
					if sa.SuspicionScore >= minScore {
						filtered = append(filtered, sa)
					}
				}
				return filtered, nil
			},
		},
		"disruption": &graphql.Field{
			Type: disruptionType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok || analysis.Report.Disruption == nil {
					return nil, nil
				}
				return analysis.Report.Disruption, nil
			},
		},
		"account": &graphql.Field{
			Type: suspiciousAccountType,
			Args: graphql.FieldConfigArgument{
				"accountId": &graphql.ArgumentConfig{
					Type: graphql.NewNonNull(graphql.ID),
				},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				analysis, ok := latest()
				if !ok {
					return nil, nil
				}
				id := p.Args["accountId"].(string)
				for _, sa := range analysis.Report.SuspiciousAccounts {
					if sa.AccountID == id {
						return sa, nil
					}
				}
				return nil, nil
			},
		},
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: queryFields,
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

// ExecuteQuery runs a query without variables.
func ExecuteQuery(query string, schema graphql.Schema) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
	})
}

// ExecuteQueryWithVariables runs a query with variables.
func ExecuteQueryWithVariables(query string, schema graphql.Schema, variables map[string]any) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
	})
}
