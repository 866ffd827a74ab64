package monitor

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryJSONNullsMissingPressure(t *testing.T) {
	h := &History{}
	h.Append("0:01", 0.2, 18, 3.4e-4)
	h.Append("0:02", 0.2, 18, math.NaN())

	raw, err := json.Marshal(h.forJSON())
	require.NoError(t, err)

	var got struct {
		Time     []string   `json:"time"`
		Pressure []*float64 `json:"pressureMbar"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got.Pressure, 2)
	require.NotNil(t, got.Pressure[0])
	assert.Equal(t, 3.4e-4, *got.Pressure[0])
	assert.Nil(t, got.Pressure[1], "NaN must encode as null")
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{time.Second, "0:01"},
		{59 * time.Second, "0:59"},
		{60 * time.Second, "1:00"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 3*time.Second, "10:03"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatElapsed(tc.d))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	h := &History{}
	h.Append("0:01", 1, 2, 3)
	labels, dc, _, _ := h.Snapshot()
	labels[0] = "mutated"
	dc[0] = 99
	got, gotDC, _, _ := h.Snapshot()
	assert.Equal(t, "0:01", got[0])
	assert.Equal(t, 1.0, gotDC[0])
}
