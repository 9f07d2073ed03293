package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_UnmarshalFillsDefaults(t *testing.T) {
	var d Device
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","deviceName":"Ender","stopDelay":"90","shutdownType":"coldown"}`), &d))

	want := NewDevice()
	want.ID = "abc"
	want.DeviceName = "Ender"
	want.StopDelay = 90
	assert.Equal(t, want, d)
}

func TestDevice_RoundTrip(t *testing.T) {
	d := NewDevice()
	d.ID = "abc"
	d.ShutdownType = ShutdownTime
	d.HotendTemp = -1
	d.ShowNavbarIcon = false

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var got Device
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, d, got)
}

func TestDeviceUpdate_ApplyOnlySetFields(t *testing.T) {
	var payload DevicePayload
	require.NoError(t, json.Unmarshal([]byte(`{"id":"ignored","bedTemp":45,"onFailed":true}`), &payload))

	d := NewDevice()
	d.ID = "abc"
	payload.Apply(&d)

	want := NewDevice()
	want.ID = "abc"
	want.BedTemp = 45
	want.OnFailed = true
	assert.Equal(t, want, d)
	assert.Equal(t, "ignored", payload.ID)
}

func TestFlexInt(t *testing.T) {
	tests := map[string]struct {
		raw     string
		want    FlexInt
		wantErr bool
	}{
		"number":          {raw: `15`, want: 15},
		"negative":        {raw: `-1`, want: -1},
		"string":          {raw: `"120"`, want: 120},
		"padded string":   {raw: `" 30 "`, want: 30},
		"float truncates": {raw: `12.7`, want: 12},
		"garbage":         {raw: `"soon"`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var fi FlexInt
			err := json.Unmarshal([]byte(tc.raw), &fi)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, fi)
		})
	}
}

func TestShutdownType_Normalize(t *testing.T) {
	assert.Equal(t, ShutdownTime, ShutdownType("time").Normalize())
	assert.Equal(t, ShutdownTime, ShutdownType("TIME").Normalize())
	assert.Equal(t, ShutdownCooldown, ShutdownType("coldown").Normalize())
	assert.Equal(t, ShutdownCooldown, ShutdownType("").Normalize())
}

func TestPrinterState_Busy(t *testing.T) {
	busy, reason := PrinterState{Operational: true}.Busy()
	assert.False(t, busy)
	assert.Empty(t, reason)

	busy, reason = PrinterState{Cancelling: true}.Busy()
	assert.True(t, busy)
	assert.Equal(t, "cancelling", reason)
}
