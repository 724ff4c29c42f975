package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(lat, 50))
	assert.Equal(t, time.Duration(10), percentile(lat, 95))
	assert.Equal(t, time.Duration(1), percentile(lat, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestStatsReport(t *testing.T) {
	st := newStats()
	st.record(opRanked, 2*time.Millisecond, 200, true, nil)
	st.record(opRanked, 4*time.Millisecond, 200, false, nil)
	st.record(opSubmit, 3*time.Millisecond, 429, false, nil)
	st.record(opSubmit, 0, 0, false, errors.New("connection refused"))
	assert.Equal(t, int64(4), st.total())

	var buf bytes.Buffer
	st.report(&buf, time.Second)
	out := buf.String()
	assert.Contains(t, out, "=== ranked ===")
	assert.Contains(t, out, "Cache hits:   1")
	assert.Contains(t, out, "  429: 1")
	assert.Contains(t, out, "Transport errors: 1")
}
