package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.Format(time.RFC3339))
}

func TestParseTimeOffsetIsUTC(t *testing.T) {
	got, ok := ParseTime("2024-10-10T12:10:10+02:00")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 10, got.Hour())
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseAsOf(t *testing.T) {
	got, err := ParseAsOf("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ParseAsOf("not-a-time")
	assert.Error(t, err)

	got, err = ParseAsOf("2024-01-02T15:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 15, got.Hour())
}
