package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategiesCommand(t *testing.T) {
	out, err := execute(t, "strategies")
	require.NoError(t, err)

	for _, want := range []string{
		"smoke", "load", "stress", "spike", "soak", "average",
		"2 VUs for 1m0s",
		"http_req_failed rate<0.05",
		"login_success_rate rate>0.95",
		"production",
	} {
		assert.Contains(t, out, want)
	}

	out, err = execute(t, "strategies", "--application", "citizen")
	require.NoError(t, err)
	assert.NotContains(t, out, "expedients_fetch_duration")
}
