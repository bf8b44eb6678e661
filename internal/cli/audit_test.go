package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditList(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "5")

	out, err := execute(t, opts, NewAuditCommand, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "plan-registered")
	assert.Contains(t, out, "PP-20260115-001")
}

func TestAuditListEmpty(t *testing.T) {
	opts := testOptions(t)

	out, err := execute(t, opts, NewAuditCommand, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no audit entries")
}

func TestAuditListLimit(t *testing.T) {
	opts := testOptions(t)
	addManualPlan(t, opts, "5")
	addTestContract(t, opts, "SO-1001", "10")

	// Newest first, limited to one entry.
	out, err := execute(t, opts, NewAuditCommand, "", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "contract-registered")
	assert.NotContains(t, out, "plan-registered")
}
