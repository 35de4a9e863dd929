// Package dashboards ships the Grafana dashboards for the bot's TimescaleDB
// tables and lints them.
package dashboards

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed hive_bot.json
var hiveBotJSON []byte

// HiveBot returns the bot dashboard.
func HiveBot() []byte {
	return append([]byte(nil), hiveBotJSON...)
}

// ValidateDashboard は、与えられたダッシュボードのJSONが同梱スキーマに準拠しているか検証します。
func ValidateDashboard(dashboardJSON []byte) (bool, []gojsonschema.ResultError, error) {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(dashboardJSON)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return false, nil, fmt.Errorf("validation error: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}
	return false, result.Errors(), nil
}

type dashboard struct {
	Panels []struct {
		Title   string `json:"title"`
		Targets []struct {
			RawSQL string `json:"rawSql"`
		} `json:"targets"`
	} `json:"panels"`
}

// Queries returns the raw SQL of every panel target keyed by panel title.
func Queries(dashboardJSON []byte) (map[string][]string, error) {
	var d dashboard
	if err := json.Unmarshal(dashboardJSON, &d); err != nil {
		return nil, fmt.Errorf("failed to parse dashboard: %w", err)
	}
	out := make(map[string][]string, len(d.Panels))
	for _, p := range d.Panels {
		for _, t := range p.Targets {
			out[p.Title] = append(out[p.Title], t.RawSQL)
		}
	}
	return out, nil
}

var fromRe = regexp.MustCompile(`(?i)\bFROM\s+([a-z_][a-z0-9_]*)`)

// Tables returns the relations a query reads from.
func Tables(query string) []string {
	var out []string
	for _, m := range fromRe.FindAllStringSubmatch(query, -1) {
		out = append(out, m[1])
	}
	return out
}
