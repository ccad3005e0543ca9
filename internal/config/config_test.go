// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

const fullProfile = `
[device]
class = 3
type = 2
serial = 1042
version = "1.4.7"
name = "Pump Controller"
info = "Dosing pump, two channels"

[peripheral]
interval = "250ms"
suppress_window = "2s"
metrics_addr = ":9464"
fields = ["mode=str:auto", "channels=u8:2"]
`

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullProfile(t *testing.T) {
	p, err := Load(writeProfile(t, fullProfile))
	require.NoError(t, err)

	assert.Equal(t, uint16(3), p.Descriptor.ClassID)
	assert.Equal(t, uint16(2), p.Descriptor.TypeID)
	assert.Equal(t, uint32(1042), p.Descriptor.Serial)
	assert.Equal(t, "1.4.7", p.Descriptor.Version())
	assert.Equal(t, "Pump Controller", p.Descriptor.Name)
	assert.Equal(t, "Dosing pump, two channels", p.Descriptor.Info)
	assert.Equal(t, 250*time.Millisecond, p.Interval)
	assert.Equal(t, 2*time.Second, p.SuppressWindow)
	assert.Equal(t, ":9464", p.MetricsAddr)

	require.Len(t, p.Fields, 2)
	assert.Equal(t, "mode", p.Fields[0].Key)
	assert.True(t, p.Fields[0].Value.Equal(sdlink.StringValue("auto")))
	assert.True(t, p.Fields[1].Value.Equal(sdlink.Uint8Value(2)))
}

func TestLoadKeepsDefaults(t *testing.T) {
	p, err := Load(writeProfile(t, "[device]\nserial = 9\n"))
	require.NoError(t, err)

	def := sdlink.DefaultDescriptor()
	assert.Equal(t, uint32(9), p.Descriptor.Serial)
	assert.Equal(t, def.Name, p.Descriptor.Name)
	assert.Equal(t, def.ClassID, p.Descriptor.ClassID)
	assert.Equal(t, time.Second, p.Interval)
	assert.Equal(t, sdlink.DefaultSuppressWindow, p.SuppressWindow)
	assert.Empty(t, p.Fields)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeProfile(t, "[device]\ncolour = \"red\"\n"))
	assert.ErrorContains(t, err, "unknown key")
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse("[peripheral]\ninterval = \"1s\"\nfeilds = [\"a=u8:1\"]\n")
	assert.ErrorContains(t, err, "unknown key")
	assert.ErrorContains(t, err, "peripheral.feilds")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"bad version":    "[device]\nversion = \"1.x\"\n",
		"bad interval":   "[peripheral]\ninterval = \"soon\"\n",
		"bad field":      "[peripheral]\nfields = [\"n=u8:300\"]\n",
		"empty name":     "[device]\nname = \"  \"\n",
		"duplicate":      "[peripheral]\nfields = [\"a=u8:1\", \"a=str:x\"]\n",
		"negative delay": "[peripheral]\nsuppress_window = \"-1s\"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			assert.Error(t, err)
		})
	}
}

func TestParseVersion(t *testing.T) {
	major, minor, rev, err := ParseVersion("v2.10.255")
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 10, 255}, []uint8{major, minor, rev})

	major, minor, rev, err = ParseVersion("3")
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 0, 0}, []uint8{major, minor, rev})

	_, _, _, err = ParseVersion("1.2.3.4")
	assert.Error(t, err)
	_, _, _, err = ParseVersion("1.256")
	assert.Error(t, err)
}

func TestValidateNameLength(t *testing.T) {
	p := Default()
	p.Descriptor.Name = string(make([]byte, sdlink.MaxStringLength+1))
	assert.ErrorIs(t, Validate(p), sdlink.ErrValueTooLong)
}
