package call

import (
	"sync"
	"time"
)

// TurnMetrics tracks latency at each stage of one turn.
// All durations are measured from the moment the utterance ends.
type TurnMetrics struct {
	// Timestamps for key events
	UtteranceEndTime time.Time // When the user finished speaking
	TranscriptTime   time.Time // When transcription completed
	ReplyTime        time.Time // When the reply text arrived
	AudioTime        time.Time // When synthesis completed
	PlaybackDoneTime time.Time // When playback finished

	// Computed latencies (from utterance end)
	TranscribeLatency time.Duration
	ReplyLatency      time.Duration
	SynthesisLatency  time.Duration
	TotalLatency      time.Duration
}

// MetricsCollector collects latency marks across turns.
// It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics // Recent turns for averaging

	onUpdate func(TurnMetrics)
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, 100),
	}
}

// OnUpdate sets a callback that fires whenever metrics are updated.
func (m *MetricsCollector) OnUpdate(fn func(TurnMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// MarkUtteranceEnd records when the user stopped speaking.
// This is the reference point for all latency measurements.
func (m *MetricsCollector) MarkUtteranceEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = TurnMetrics{} // Reset for new turn
	m.current.UtteranceEndTime = time.Now()
}

// MarkTranscript records when transcription completed.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.TranscribeLatency = m.current.TranscriptTime.Sub(m.current.UtteranceEndTime)
	}
	m.notify()
}

// MarkReply records when the reply text arrived.
func (m *MetricsCollector) MarkReply() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ReplyTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.ReplyLatency = m.current.ReplyTime.Sub(m.current.UtteranceEndTime)
	}
	m.notify()
}

// MarkAudio records when synthesis completed.
func (m *MetricsCollector) MarkAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AudioTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.SynthesisLatency = m.current.AudioTime.Sub(m.current.UtteranceEndTime)
	}
	m.notify()
}

// MarkPlaybackDone records when the reply was fully delivered.
func (m *MetricsCollector) MarkPlaybackDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.PlaybackDoneTime = time.Now()
	if !m.current.UtteranceEndTime.IsZero() {
		m.current.TotalLatency = m.current.PlaybackDoneTime.Sub(m.current.UtteranceEndTime)
	}
	// Archive this turn
	m.history = append(m.history, m.current)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	m.notify()
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Average returns average metrics over recent turns.
func (m *MetricsCollector) Average() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return TurnMetrics{}
	}

	var avg TurnMetrics
	for _, h := range m.history {
		avg.TranscribeLatency += h.TranscribeLatency
		avg.ReplyLatency += h.ReplyLatency
		avg.SynthesisLatency += h.SynthesisLatency
		avg.TotalLatency += h.TotalLatency
	}

	n := time.Duration(len(m.history))
	avg.TranscribeLatency /= n
	avg.ReplyLatency /= n
	avg.SynthesisLatency /= n
	avg.TotalLatency /= n

	return avg
}

// notify calls the update callback if set.
// Must be called with mutex held.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		// Copy to avoid races
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// FormatLatency returns a formatted string of current latencies.
func (m *TurnMetrics) FormatLatency() string {
	return formatDuration(m.TranscribeLatency) + " STT | " +
		formatDuration(m.ReplyLatency) + " LLM | " +
		formatDuration(m.SynthesisLatency) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
