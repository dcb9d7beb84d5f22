package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTelloStatus(t *testing.T) {
	raw := "mid:-1;x:-100;y:-100;z:-100;mpry:0,0,0;pitch:0;roll:0;yaw:0;vgx:0;vgy:0;vgz:0;templ:48;temph:50;tof:10;h:0;bat:75;baro:-9.41;time:0;agx:-9.00;agy:-1.00;agz:-998.00;\r\n"
	got := Parse(raw)

	require.Equal(t, "75", got["bat"])
	require.Equal(t, "-9.41", got["baro"])
	require.Equal(t, "-998.00", got["agz"])
	require.NotContains(t, got, "mid")
	require.NotContains(t, got, "mpry")
	require.Len(t, got, 16)
}

func TestParseSkipsMalformed(t *testing.T) {
	got := Parse("bat:80;garbage;:nokey;speed:1:2;;")
	require.Equal(t, map[string]string{"bat": "80", "speed": "1:2"}, got)
	require.Empty(t, Parse(""))
}

func TestClone(t *testing.T) {
	m := map[string]string{"bat": "1"}
	c := Clone(m)
	c["bat"] = "2"
	require.Equal(t, "1", m["bat"])
}
