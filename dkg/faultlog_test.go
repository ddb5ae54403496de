package dkg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/syncdkg/dkg"
)

func TestFaultKindString(t *testing.T) {
	require.Equal(t, "invalid-propose", dkg.InvalidPropose.String())
	require.Equal(t, "invalid-accept", dkg.InvalidAccept.String())
}

func TestFaultLogAppendAndIsEmpty(t *testing.T) {
	var log dkg.FaultLog
	require.True(t, log.IsEmpty())

	log.Append("node-1", dkg.InvalidAccept)
	require.False(t, log.IsEmpty())
	require.Equal(t, "node-1", log[0].NodeID)
	require.Equal(t, dkg.InvalidAccept, log[0].Kind)
}
