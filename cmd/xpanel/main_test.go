package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EZERROUK/x-panel-sub002/internal/app"
	_ "github.com/EZERROUK/x-panel-sub002/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
