package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestChunkMonitorCreation(t *testing.T) {
	monitor := NewChunkMonitor(zap.NewNop())

	assert.NotNil(t, monitor)
	assert.False(t, monitor.benchmark)
	assert.Equal(t, time.Hour, monitor.GetMetrics().MinLatency)
}

func TestStartChunk(t *testing.T) {
	monitor := NewChunkMonitor(zap.NewNop())

	timer := monitor.StartChunk(30, true)

	assert.True(t, timer.UseGPU)
	assert.Equal(t, 30.0, timer.AudioSeconds)
	assert.False(t, timer.StartTime.IsZero())
}

func TestEndChunkUpdatesMetrics(t *testing.T) {
	monitor := NewChunkMonitor(zap.NewNop())

	timer := monitor.StartChunk(30, false)
	time.Sleep(5 * time.Millisecond)
	monitor.EndChunk(timer, false)

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.CompletedChunks)
	assert.Equal(t, int64(1), metrics.CPUChunks)
	assert.Equal(t, int64(0), metrics.GPUChunks)
	assert.Equal(t, 30.0, metrics.TotalAudioSeconds)
	assert.True(t, metrics.TotalLatency > 0)
	assert.Equal(t, metrics.LastLatency, metrics.MinLatency)
	assert.Equal(t, metrics.LastLatency, metrics.MaxLatency)
	assert.Greater(t, monitor.RealTimeFactor(), 0.0)
}

func TestEndChunkFailed(t *testing.T) {
	monitor := NewChunkMonitor(zap.NewNop())

	monitor.EndChunk(monitor.StartChunk(30, true), true)

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(1), metrics.FailedChunks)
	assert.Equal(t, int64(0), metrics.CompletedChunks)
	assert.Equal(t, 0.0, metrics.TotalAudioSeconds)
	assert.Equal(t, 0.0, monitor.RealTimeFactor())
}

func TestGetSummary(t *testing.T) {
	monitor := NewChunkMonitor(zap.NewNop())
	assert.Equal(t, "No chunk metrics available", monitor.GetSummary())

	monitor.EndChunk(monitor.StartChunk(30, true), false)
	monitor.EndChunk(monitor.StartChunk(30, false), true)

	summary := monitor.GetSummary()
	assert.Contains(t, summary, "Chunk Summary")
	assert.Contains(t, summary, "Completed: 1 (1 GPU, 0 CPU)")
	assert.Contains(t, summary, "Failed: 1")
}

func TestReset(t *testing.T) {
	monitor := NewChunkMonitor(zaptest.NewLogger(t))
	monitor.EndChunk(monitor.StartChunk(30, true), false)

	monitor.Reset()

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(0), metrics.CompletedChunks)
	assert.Equal(t, time.Hour, metrics.MinLatency)
}

func TestBenchmarkMode(t *testing.T) {
	monitor := NewChunkMonitorWithBenchmark(zaptest.NewLogger(t), true)
	assert.True(t, monitor.benchmark)

	monitor.EndChunk(monitor.StartChunk(1, false), false)
	monitor.BenchmarkMode(false)
	assert.False(t, monitor.benchmark)

	monitor.LogCurrentMetrics()
}
