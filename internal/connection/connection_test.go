package connection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBanner_FindsBothLabelledAddresses(t *testing.T) {
	r := strings.NewReader(
		"some unrelated startup noise\n" +
			"workflow_engine_alice 127.0.0.1:40001\n" +
			"connection_checker 127.0.0.1:40002\n" +
			"trailing noise\n",
	)
	engineAddr, checkerAddr, err := scanBanner(r, "workflow_engine_alice")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:40001", engineAddr)
	assert.Equal(t, "127.0.0.1:40002", checkerAddr)
}

func TestScanBanner_OrderIndependent(t *testing.T) {
	r := strings.NewReader(
		"connection_checker 10.0.0.1:9000\n" +
			"workflow_engine_bob 10.0.0.1:9001\n",
	)
	engineAddr, checkerAddr, err := scanBanner(r, "workflow_engine_bob")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9001", engineAddr)
	assert.Equal(t, "10.0.0.1:9000", checkerAddr)
}

func TestScanBanner_MissingLabelErrors(t *testing.T) {
	r := strings.NewReader("connection_checker 10.0.0.1:9000\n")
	_, _, err := scanBanner(r, "workflow_engine_bob")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestScanBanner_IgnoresMalformedLines(t *testing.T) {
	r := strings.NewReader(
		"garbage with too many fields here\n" +
			"workflow_engine_carol 127.0.0.1:1\n" +
			"connection_checker 127.0.0.1:2\n",
	)
	engineAddr, checkerAddr, err := scanBanner(r, "workflow_engine_carol")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", engineAddr)
	assert.Equal(t, "127.0.0.1:2", checkerAddr)
}
