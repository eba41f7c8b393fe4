// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Default(), id)

	id, err = Parse("platform=OTHER, type=OTHER_DEVICE,payload=xyz")
	require.NoError(t, err)
	assert.Equal(t, "OTHER", id.PlatformName)
	assert.Equal(t, "OTHER_DEVICE", id.PlatformType)
	assert.Equal(t, "OTHER_DEVICE", id.DeviceType)
	assert.Equal(t, "xyz", id.HandlePayload)

	id, err = Parse("device=KERNELS_ONLY")
	require.NoError(t, err)
	assert.Equal(t, DefaultDeviceType, id.PlatformType)
	assert.Equal(t, "KERNELS_ONLY", id.DeviceType)

	_, err = Parse("color=blue")
	require.Error(t, err)
	_, err = Parse("platform")
	require.Error(t, err)
	_, err = Parse("type=")
	require.Error(t, err)
}

func TestValidateIdentifier(t *testing.T) {
	require.NoError(t, ValidateIdentifier("Relu"))
	require.Error(t, ValidateIdentifier(""))
	require.Error(t, ValidateIdentifier("Bias\x00Add"))
	require.Error(t, ValidateIdentifier("Relu\x00"))
}
