package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/acme/dialplan-sync/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
dialplans:
  - name: DP-EAST
    route_type: trunk
    route_choice: lgw-east-1
    catalogs: [east-cluster]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Webex.BatchSize != 200 {
		t.Errorf("expected default batch size 200, got %d", cfg.Webex.BatchSize)
	}
	if cfg.Normalize.DefaultRegion != "US" {
		t.Errorf("expected default region US, got %q", cfg.Normalize.DefaultRegion)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected default base delay 500ms, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Tokens != ".tokens.yaml" {
		t.Errorf("expected default tokens path, got %q", cfg.Tokens)
	}
}

func TestLoadParsesDialPlans(t *testing.T) {
	path := writeConfig(t, `
tokens: /var/lib/dialplan/tokens.yaml
dialplans:
  - name: DP-EAST
    route_type: trunk
    route_choice: lgw-east-1
    catalogs: [east-cluster, east-lab]
  - name: DP-WEST
    route_type: route_group
    route_choice: rg-west
    catalogs: [west-cluster]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.DialPlans) != 2 {
		t.Fatalf("expected 2 dial plans, got %d", len(cfg.DialPlans))
	}

	byCatalog := cfg.PlanByCatalog()
	if byCatalog["east-lab"] != "DP-EAST" {
		t.Errorf("expected east-lab to map to DP-EAST, got %q", byCatalog["east-lab"])
	}
	if byCatalog["west-cluster"] != "DP-WEST" {
		t.Errorf("expected west-cluster to map to DP-WEST, got %q", byCatalog["west-cluster"])
	}

	byName := cfg.PlanByName()
	if byName["DP-WEST"].RouteChoice != "rg-west" {
		t.Errorf("unexpected route choice: %q", byName["DP-WEST"].RouteChoice)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name:    "no dial plans",
			content: `tokens: .tokens.yaml`,
		},
		{
			name: "empty plan name",
			content: `
dialplans:
  - name: ""
    route_type: trunk
    route_choice: lgw-1
`,
		},
		{
			name: "duplicate plan name",
			content: `
dialplans:
  - name: DP
    route_type: trunk
    route_choice: lgw-1
  - name: DP
    route_type: trunk
    route_choice: lgw-2
`,
		},
		{
			name: "bad route type",
			content: `
dialplans:
  - name: DP
    route_type: gateway
    route_choice: lgw-1
`,
		},
		{
			name: "missing route choice",
			content: `
dialplans:
  - name: DP
    route_type: trunk
    route_choice: ""
`,
		},
		{
			name: "catalog claimed twice",
			content: `
dialplans:
  - name: DP-A
    route_type: trunk
    route_choice: lgw-1
    catalogs: [shared]
  - name: DP-B
    route_type: trunk
    route_choice: lgw-2
    catalogs: [shared]
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !pkgerrors.Is(err, pkgerrors.ErrConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !pkgerrors.Is(err, pkgerrors.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}
