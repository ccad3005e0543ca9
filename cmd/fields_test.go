// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/sdlink/pkg/sdlink"
)

func TestParseFields(t *testing.T) {
	records, err := parseFields([]string{"temp=i16:-40", "mode=str:auto", "ratio=f32:0.5"})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "temp", records[0].Key)
	assert.Equal(t, sdlink.TypeInt16, records[0].Value.Type())
	assert.Equal(t, int16(-40), records[0].Value.Int16())
	assert.Equal(t, "auto", records[1].Value.Str())
	assert.Equal(t, float32(0.5), records[2].Value.Float32())
}

func TestParseFields_Errors(t *testing.T) {
	_, err := parseFields([]string{"a=u8:1", "a=u8:2"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = parseFields([]string{"a=u8:300"})
	assert.Error(t, err)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
}

func TestStoreOf(t *testing.T) {
	records, err := parseFields([]string{"b=u8:2", "a=u8:1"})
	require.NoError(t, err)

	s, err := storeOf(records)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, s.Keys())
	assert.Equal(t, uint8(1), sdlink.GetOr[uint8](s, "a", 0))
}

func TestComposedRecords(t *testing.T) {
	records, err := composedRecords("  temp=i16:21   mode=str:eco ")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = composedRecords("   ")
	assert.ErrorIs(t, err, errComposerEmpty)
}

func TestHeartbeatFill(t *testing.T) {
	fields, err := parseFields([]string{"mode=str:auto"})
	require.NoError(t, err)

	started := time.Unix(100, 0)
	hb := &heartbeat{fields: fields, started: started}
	s := sdlink.NewStore()
	require.NoError(t, sdlink.Set(s, "stale", uint8(9)))

	require.NoError(t, hb.fill(s, started.Add(1500*time.Millisecond)))
	assert.Equal(t, []string{"mode", "seq", "uptime_ms"}, s.Keys())
	assert.Equal(t, uint32(1), sdlink.GetOr[uint32](s, "seq", 0))
	assert.Equal(t, uint32(1500), sdlink.GetOr[uint32](s, "uptime_ms", 0))
	hb.sent()

	require.NoError(t, hb.fill(s, started.Add(2*time.Second)))
	assert.Equal(t, uint32(2), sdlink.GetOr[uint32](s, "seq", 0))
	assert.Equal(t, 3, s.Len())
}

func TestHeartbeat_SuppressedKeepsSequence(t *testing.T) {
	mem := sdlink.NewMemoryTransport()
	engine := sdlink.NewEngine(mem)
	hb := &heartbeat{started: time.Now()}

	beat := func() error {
		if err := hb.fill(engine.Store(), time.Now()); err != nil {
			return err
		}
		err := engine.Send(sdlink.CmdSendData)
		if err == nil {
			hb.sent()
		}
		return err
	}

	require.NoError(t, beat())
	mem.Feed(sdlink.MustEncodeFrame(sdlink.CmdStopData, nil))
	require.NoError(t, engine.Poll())
	require.ErrorIs(t, beat(), sdlink.ErrSuppressed)
	require.ErrorIs(t, beat(), sdlink.ErrSuppressed)
	assert.Equal(t, uint32(1), hb.seq)

	// The next beat that goes out carries seq 2
	require.NoError(t, hb.fill(engine.Store(), time.Now()))
	assert.Equal(t, uint32(2), sdlink.GetOr[uint32](engine.Store(), "seq", 0))

	written := mem.Written()
	require.Len(t, written, 1)
	f, err := sdlink.DecodeFrame(written[0])
	require.NoError(t, err)
	sent, err := f.Store()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), sdlink.GetOr[uint32](sent, "seq", 0))
}

func TestChecksumWatch_ReportsEachFailureOnce(t *testing.T) {
	mem := sdlink.NewMemoryTransport()
	engine := sdlink.NewEngine(mem)
	var watch checksumWatch

	bad := sdlink.MustEncodeFrame(sdlink.CmdStopData, nil)
	bad[len(bad)-2] ^= 0xFF
	mem.Feed(bad)
	assert.Error(t, engine.Poll())
	require.True(t, engine.DataError())
	assert.Equal(t, uint64(1), watch.fresh(engine.Statistics()))

	// The flag stays set while the link is idle; nothing new to report
	for i := 0; i < 10; i++ {
		require.NoError(t, engine.Poll())
		assert.Zero(t, watch.fresh(engine.Statistics()))
	}
	assert.True(t, engine.DataError())

	mem.Feed(bad)
	mem.Feed(bad)
	engine.Poll()
	assert.Equal(t, uint64(2), watch.fresh(engine.Statistics()))

	engine.Statistics().Reset()
	assert.Zero(t, watch.fresh(engine.Statistics()))
	mem.Feed(bad)
	engine.Poll()
	assert.Equal(t, uint64(1), watch.fresh(engine.Statistics()))
}
