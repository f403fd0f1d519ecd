package performance

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChunkMetrics aggregates recognition timings across transcription chunks
type ChunkMetrics struct {
	CompletedChunks   int64
	FailedChunks      int64
	GPUChunks         int64
	CPUChunks         int64
	TotalAudioSeconds float64
	TotalLatency      time.Duration
	AvgLatency        time.Duration
	MinLatency        time.Duration
	MaxLatency        time.Duration
	LastLatency       time.Duration
	LastTimestamp     time.Time
}

// ChunkTimer tracks one chunk from dispatch to retirement
type ChunkTimer struct {
	StartTime    time.Time
	AudioSeconds float64
	UseGPU       bool
	Latency      time.Duration
}

// ChunkMonitor records per-chunk latency. It is safe for concurrent use.
type ChunkMonitor struct {
	logger    *zap.Logger
	metrics   ChunkMetrics
	mu        sync.RWMutex
	benchmark bool
}

// NewChunkMonitor creates a new chunk monitor
func NewChunkMonitor(logger *zap.Logger) *ChunkMonitor {
	return NewChunkMonitorWithBenchmark(logger, false)
}

// NewChunkMonitorWithBenchmark creates a chunk monitor that logs every retired chunk when benchmark is set
func NewChunkMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *ChunkMonitor {
	return &ChunkMonitor{
		logger: logger,
		metrics: ChunkMetrics{
			MinLatency:    time.Hour,
			LastTimestamp: time.Now(),
		},
		benchmark: benchmark,
	}
}

// StartChunk begins timing a dispatched chunk
func (m *ChunkMonitor) StartChunk(audioSeconds float64, useGPU bool) *ChunkTimer {
	return &ChunkTimer{
		StartTime:    time.Now(),
		AudioSeconds: audioSeconds,
		UseGPU:       useGPU,
	}
}

// EndChunk completes timing. Failed chunks are counted but excluded from latency statistics.
func (m *ChunkMonitor) EndChunk(timer *ChunkTimer, failed bool) {
	timer.Latency = time.Since(timer.StartTime)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.LastTimestamp = time.Now()
	if failed {
		m.metrics.FailedChunks++
		return
	}

	m.metrics.CompletedChunks++
	m.metrics.TotalAudioSeconds += timer.AudioSeconds
	m.metrics.TotalLatency += timer.Latency
	m.metrics.LastLatency = timer.Latency

	if timer.UseGPU {
		m.metrics.GPUChunks++
	} else {
		m.metrics.CPUChunks++
	}

	if timer.Latency < m.metrics.MinLatency {
		m.metrics.MinLatency = timer.Latency
	}
	if timer.Latency > m.metrics.MaxLatency {
		m.metrics.MaxLatency = timer.Latency
	}

	m.metrics.AvgLatency = time.Duration(int64(m.metrics.TotalLatency) / m.metrics.CompletedChunks)

	if m.benchmark {
		m.logger.Info("chunk recognition performance",
			zap.Bool("use_gpu", timer.UseGPU),
			zap.Float64("audio_seconds", timer.AudioSeconds),
			zap.Duration("latency", timer.Latency))
	}
}

// GetMetrics returns a copy of current metrics
func (m *ChunkMonitor) GetMetrics() ChunkMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// RealTimeFactor returns seconds of audio recognised per second of summed chunk latency
func (m *ChunkMonitor) RealTimeFactor() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.metrics.TotalLatency <= 0 {
		return 0
	}
	return m.metrics.TotalAudioSeconds / m.metrics.TotalLatency.Seconds()
}

// GetSummary returns a formatted summary of chunk metrics
func (m *ChunkMonitor) GetSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.metrics.CompletedChunks == 0 && m.metrics.FailedChunks == 0 {
		return "No chunk metrics available"
	}

	minLatency := m.metrics.MinLatency
	if m.metrics.CompletedChunks == 0 {
		minLatency = 0
	}

	return fmt.Sprintf(
		"Chunk Summary:\n"+
			"  Completed: %d (%d GPU, %d CPU)\n"+
			"  Failed: %d\n"+
			"  Avg Latency: %v\n"+
			"  Min/Max Latency: %v / %v\n"+
			"  Audio Recognised: %.1fs\n",
		m.metrics.CompletedChunks,
		m.metrics.GPUChunks,
		m.metrics.CPUChunks,
		m.metrics.FailedChunks,
		m.metrics.AvgLatency,
		minLatency,
		m.metrics.MaxLatency,
		m.metrics.TotalAudioSeconds,
	)
}

// Reset clears all accumulated metrics
func (m *ChunkMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = ChunkMetrics{
		MinLatency:    time.Hour,
		LastTimestamp: time.Now(),
	}
	m.logger.Info("chunk metrics reset")
}

// BenchmarkMode enables or disables per-chunk logging
func (m *ChunkMonitor) BenchmarkMode(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.benchmark = enabled
	m.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// LogCurrentMetrics logs the current chunk metrics
func (m *ChunkMonitor) LogCurrentMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.logger.Info("current chunk metrics",
		zap.Int64("completed_chunks", m.metrics.CompletedChunks),
		zap.Int64("failed_chunks", m.metrics.FailedChunks),
		zap.Int64("gpu_chunks", m.metrics.GPUChunks),
		zap.Duration("avg_latency", m.metrics.AvgLatency),
		zap.Duration("last_latency", m.metrics.LastLatency),
		zap.Float64("audio_seconds", m.metrics.TotalAudioSeconds))
}
