package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unitd/unitd/internal/unitmodel"
)

func TestStartCommandDispatchesToCommander(t *testing.T) {
	ctx, commander := withTestApp(t)

	err := runCommand(t, ctx, newStartCmd(), "web.service")
	require.NoError(t, err)

	select {
	case id := <-commander.startCalls:
		assert.Equal(t, unitmodel.UnitID(1), id)
	case <-time.After(time.Second):
		t.Fatal("Commander.Start was never called")
	}
}

func TestStartCommandUnknownUnitReturnsError(t *testing.T) {
	ctx, _ := withTestApp(t)
	err := runCommand(t, ctx, newStartCmd(), "ghost.service")
	assert.Error(t, err)
}
