package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func simOptions() *sand.Options {
	opts := sand.DefaultOptions()
	opts.TimeoutDuration = 150 * time.Millisecond
	opts.RefreshInterval = 20 * time.Millisecond
	opts.Name = "sim"
	return opts
}

func TestRun(t *testing.T) {
	for _, keys := range []string{"uuid", "session"} {
		t.Run(keys, func(t *testing.T) {
			cfg := Config{
				Clients:        40,
				SilentFraction: 0.5,
				TouchInterval:  20 * time.Millisecond,
				Duration:       800 * time.Millisecond,
				KeyType:        keys,
				Seed:           7,
			}

			var metrics bytes.Buffer
			report, err := Run(context.Background(), cfg, simOptions(), &metrics)
			require.NoError(t, err)

			assert.Equal(t, 40, report.Clients)
			assert.Positive(t, report.Silent)
			assert.Equal(t, report.Silent, report.Detected)
			assert.Zero(t, report.Missed)
			assert.Zero(t, report.FalsePositives)
			assert.Zero(t, report.Duplicates)
			assert.GreaterOrEqual(t, report.DelayMs.Min, 150.0)
			assert.Equal(t, "Stopped", report.Clock.State)
			assert.Contains(t, metrics.String(), `sandclock_timeouts_total{clock="sim"}`)
		})
	}
}

func TestRunInvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Run(ctx, Config{Clients: 1, TouchInterval: time.Second, Duration: time.Second}, simOptions(), nil)
	assert.Error(t, err, "interval longer than the timeout")

	_, err = Run(ctx, Config{Clients: 0, TouchInterval: time.Millisecond, Duration: time.Second}, simOptions(), nil)
	assert.Error(t, err)

	_, err = Run(ctx, Config{Clients: 1, TouchInterval: time.Millisecond, KeyType: "int"}, simOptions(), nil)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	r := &Report{Clients: 10, Silent: 2, Detected: 2}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", r))
	var fromJSON Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, 2, fromJSON.Detected)

	buf.Reset()
	require.NoError(t, writeReport(&buf, "yaml", r))
	assert.Contains(t, buf.String(), "detected: 2")
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, 10, fromYAML.Clients)

	buf.Reset()
	require.NoError(t, writeReport(&buf, "text", r))
	assert.Contains(t, buf.String(), "Detected")

	assert.Error(t, writeReport(&buf, "xml", r))
}
