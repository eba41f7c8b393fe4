// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the identity of the virtual device: the names the host uses to enumerate
// the platform, and to match kernels to the device.
//
// The Identity is a plain value passed to device.New and registry.New, so more than one identity
// can coexist in the same process. It is never read from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultPlatformName is the name the platform reports to the host.
	DefaultPlatformName = "FAKE_CPU_DEVICE"

	// DefaultDeviceType is the device type both the platform and the kernels register with.
	DefaultDeviceType = "MY_DEVICE"

	// DefaultHandlePayload is the payload stored in each device handle.
	DefaultHandlePayload = "magic"
)

// Identity of a virtual device.
type Identity struct {
	// PlatformName is reported by the platform, e.g. "FAKE_CPU_DEVICE".
	PlatformName string

	// PlatformType is the platform type, and the device type the host will use for placement.
	PlatformType string

	// DeviceType is the device type kernels are registered for. It usually matches PlatformType.
	DeviceType string

	// HandlePayload is the arbitrary payload stored in every device handle, and visible
	// to kernels through their stream.
	HandlePayload string
}

// Default returns the fixed identity of the plugin.
func Default() Identity {
	return Identity{
		PlatformName:  DefaultPlatformName,
		PlatformType:  DefaultDeviceType,
		DeviceType:    DefaultDeviceType,
		HandlePayload: DefaultHandlePayload,
	}
}

// Parse a configuration string over the Default identity.
//
// The format is a comma-separated list of "key=value" pairs, with keys:
//
//   - "platform": PlatformName.
//   - "type": PlatformType and DeviceType.
//   - "device": DeviceType only.
//   - "payload": HandlePayload.
//
// An empty string returns the Default identity.
func Parse(config string) (Identity, error) {
	id := Default()
	config = strings.TrimSpace(config)
	if config == "" {
		return id, nil
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return Identity{}, errors.Errorf("invalid device configuration %q: %q is not in the format \"key=value\"", config, part)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "platform":
			id.PlatformName = value
		case "type":
			id.PlatformType = value
			id.DeviceType = value
		case "device":
			id.DeviceType = value
		case "payload":
			id.HandlePayload = value
		default:
			return Identity{}, errors.Errorf("invalid device configuration %q: unknown key %q", config, key)
		}
	}
	if err := id.Validate(); err != nil {
		return Identity{}, errors.WithMessagef(err, "invalid device configuration %q", config)
	}
	return id, nil
}

// Validate checks that the names are valid host identifiers.
func (id Identity) Validate() error {
	for _, field := range []struct{ name, value string }{
		{"platform name", id.PlatformName},
		{"platform type", id.PlatformType},
		{"device type", id.DeviceType},
	} {
		if err := ValidateIdentifier(field.value); err != nil {
			return errors.WithMessage(err, field.name)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return fmt.Sprintf("platform=%s,type=%s,device=%s", id.PlatformName, id.PlatformType, id.DeviceType)
}

// ValidateIdentifier checks that name can be handed to the host as a NUL-terminated string:
// it must be non-empty and must not contain a NUL byte.
func ValidateIdentifier(name string) error {
	if name == "" {
		return errors.New("identifier is empty")
	}
	if idx := strings.IndexByte(name, 0); idx != -1 {
		return errors.Errorf("identifier %q has a NUL byte at position %d", name, idx)
	}
	return nil
}
