package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: model declarations to load,
// documents to seed, and queries to run with expected results. Scenarios
// live in YAML files next to the tests that run them.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models lists paths to model declaration files, YAML or CUE,
	// relative to the scenario file.
	Models []string `yaml:"models"`

	// Data seeds collections before the queries run. Keys are model
	// names; values are caller-visible documents encoded through the
	// backend's coercion on load.
	Data map[string][]map[string]any `yaml:"data,omitempty"`

	// Queries is the ordered query list. Each step compiles, executes
	// and maps independently; the trace records every step.
	Queries []QueryStep `yaml:"queries"`

	dir string
}

// QueryStep describes one query in builder vocabulary.
type QueryStep struct {
	// Name identifies the step in traces and failure messages.
	Name string `yaml:"name"`

	// Model names the base model.
	Model string `yaml:"model"`

	// Filter is the domain term sequence: condition documents and
	// connector strings in prefix order.
	Filter []FilterTerm `yaml:"filter,omitempty"`

	// Select restricts the projection.
	Select []string `yaml:"select,omitempty"`

	// OrderBy lists sort keys.
	OrderBy []SortKey `yaml:"order_by,omitempty"`

	Limit  *int64 `yaml:"limit,omitempty"`
	Offset *int64 `yaml:"offset,omitempty"`

	// GroupBy, Metrics and Having describe one aggregate operation.
	GroupBy []string     `yaml:"group_by,omitempty"`
	Metrics []MetricDecl `yaml:"metrics,omitempty"`
	Having  []FilterTerm `yaml:"having,omitempty"`

	// Join describes one join operation.
	Join *JoinDecl `yaml:"join,omitempty"`

	// Window describes one window operation.
	Window *WindowDecl `yaml:"window,omitempty"`

	// Expect validates the mapped rows. Nil skips validation; the golden
	// trace still pins the output.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// FilterTerm is one term of a domain sequence: either Connector is set
// ("&", "|", "!") or the condition fields are.
type FilterTerm struct {
	Connector string `yaml:"connector,omitempty"`
	Field     string `yaml:"field,omitempty"`
	Op        string `yaml:"op,omitempty"`
	Value     any    `yaml:"value,omitempty"`
}

// SortKey is one order-by entry; Dir is "asc" or "desc".
type SortKey struct {
	Field string `yaml:"field"`
	Dir   string `yaml:"dir,omitempty"`
}

// MetricDecl requests one aggregate metric.
type MetricDecl struct {
	Fn    string `yaml:"fn"`
	Field string `yaml:"field,omitempty"`
	Alias string `yaml:"alias"`
}

// JoinDecl describes a join against another declared model.
type JoinDecl struct {
	Target       string   `yaml:"target"`
	LocalField   string   `yaml:"local_field"`
	ForeignField string   `yaml:"foreign_field"`
	Kind         string   `yaml:"kind,omitempty"`
	Select       []string `yaml:"select,omitempty"`
}

// WindowDecl describes a window function.
type WindowDecl struct {
	Fn          string     `yaml:"fn"`
	Alias       string     `yaml:"alias"`
	Field       string     `yaml:"field,omitempty"`
	PartitionBy []string   `yaml:"partition_by,omitempty"`
	OrderBy     []SortKey  `yaml:"order_by,omitempty"`
	Frame       *FrameDecl `yaml:"frame,omitempty"`
}

// FrameDecl bounds a moving aggregate; Unit is "rows" or "range".
type FrameDecl struct {
	Unit  string `yaml:"unit"`
	Start int64  `yaml:"start"`
	End   int64  `yaml:"end"`
}

// Expectation validates a step's mapped rows.
type Expectation struct {
	// Count, when set, is the exact expected row count.
	Count *int `yaml:"count,omitempty"`

	// Rows are subset-matched against the mapped rows in order: row i
	// must contain every listed field with an equal value.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Error, when set, expects the step to fail with an error containing
	// this substring instead of producing rows.
	Error string `yaml:"error,omitempty"`
}

// LoadScenario reads a scenario file. Model paths resolve relative to it.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	s.dir = filepath.Dir(path)
	return &s, nil
}

// LoadScenarioDir reads every *.yaml scenario under dir, sorted by name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
