// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends_test

import (
	"testing"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/clgen/backends/simdevice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv(backends.CLGEN_BACKEND, "simdevice:parallelism=1")
	backend := backends.New()
	assert.Equal(t, simdevice.BackendName, backend.Name())
}

func TestNewWithConfig(t *testing.T) {
	backend := backends.NewWithConfig("simdevice")
	assert.Equal(t, simdevice.BackendName, backend.Name())

	require.Panics(t, func() { backends.NewWithConfig("tpu:v6") })
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(backends.CLGEN_BACKEND, "")
	// An empty CLGEN_BACKEND still counts as set, and selects no backend.
	require.Panics(t, func() { backends.New() })

	backends.DefaultConfig = "simdevice"
	defer func() { backends.DefaultConfig = "" }()
	// DefaultConfig only applies when the environment variable is unset.
	require.Panics(t, func() { backends.New() })
}
