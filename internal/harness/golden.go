package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden. Regenerate with
//
//	go test ./internal/harness -update
//
// The trace serializes through encoding/json, which orders map keys, so
// equal runs produce byte-identical files.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	snapshot := struct {
		Scenario string      `json:"scenario"`
		Trace    []StepTrace `json:"trace"`
	}{Scenario: scenario.Name, Trace: result.Trace}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, out)
	return nil
}
