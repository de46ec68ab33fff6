package stringutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 10, 19, 12, 30, 15, 250000000, time.Local)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"Micros", "2026-10-19 12:30:15.250000", want},
		{"NoFraction", "2026-10-19 12:30:15", want.Truncate(time.Second)},
		{"RFC3339", want.Format(time.RFC3339Nano), want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := ParseTime("tomorrow")
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", FormatTime(time.Time{}))
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.Local)
	assert.Equal(t, "2026-01-02 03:04:05.000006", FormatTime(ts))
}

func TestRemoveQuotes(t *testing.T) {
	assert.Equal(t, "abc", RemoveQuotes(`"abc"`))
	assert.Equal(t, `"abc`, RemoveQuotes(`"abc`))
	assert.Equal(t, "", RemoveQuotes(`""`))
}
