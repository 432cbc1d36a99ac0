package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommandUnknownUnitReturnsError(t *testing.T) {
	ctx, _ := withTestApp(t)
	err := runCommand(t, ctx, newStatusCmd(), "ghost.service")
	assert.Error(t, err)
}

func TestStatusCommandKnownUnitSucceeds(t *testing.T) {
	ctx, _ := withTestApp(t)
	err := runCommand(t, ctx, newStatusCmd(), "web.service")
	require.NoError(t, err)
}

func TestListCommandSucceeds(t *testing.T) {
	ctx, _ := withTestApp(t)
	err := runCommand(t, ctx, newListCmd())
	require.NoError(t, err)
}

func TestShutdownCommandDispatches(t *testing.T) {
	ctx, _ := withTestApp(t)
	err := runCommand(t, ctx, newShutdownCmd())
	require.NoError(t, err)
}
