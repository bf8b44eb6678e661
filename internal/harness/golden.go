package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// RunWithGolden loads testdata/scenarios/<name>.yaml, runs it, and compares
// the trace line-by-line against testdata/<name>.golden.
//
// To regenerate golden files after an intended trace change:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, name string) {
	t.Helper()

	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	require.Equal(t, name, scenario.Name, "scenario name must match its file name")

	result, err := Run(scenario)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, name, []byte(strings.Join(result.Trace, "\n")+"\n"))
}
