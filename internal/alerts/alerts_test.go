package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"opsmon/internal/models"
)

func TestEvaluateDisabledLimit(t *testing.T) {
	for _, limit := range []float64{0, -1, -0.5} {
		for _, value := range []float64{-10, 0, 0.5, 1e9} {
			s := NewState()
			tr, ok := Evaluate(models.Memory, value, limit, s)
			assert.False(t, ok, "limit %v value %v", limit, value)
			assert.Equal(t, models.Transition(0), tr)
			assert.False(t, s.Exceeded(models.Memory))
		}
	}
}

func TestEvaluateDisabledLimitLeavesExceededUntouched(t *testing.T) {
	s := NewState()
	_, ok := Evaluate(models.DiskSpace, 95, 90, s)
	assert.True(t, ok)

	_, ok = Evaluate(models.DiskSpace, 10, 0, s)
	assert.False(t, ok)
	assert.True(t, s.Exceeded(models.DiskSpace))
}

func TestEvaluateTransitions(t *testing.T) {
	tests := []struct {
		name         string
		exceeded     bool
		value        float64
		wantOK       bool
		want         models.Transition
		wantExceeded bool
	}{
		{"normal above limit warns", false, 81, true, models.Warning, true},
		{"normal below limit stays", false, 50, false, 0, false},
		{"normal at limit stays", false, 75, false, 0, false},
		{"warning above limit stays", true, 90, false, 0, true},
		{"warning at limit stays", true, 75, false, 0, true},
		{"warning below limit restores", true, 74.99, true, models.Restored, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.exceeded[models.Memory] = tt.exceeded

			tr, ok := Evaluate(models.Memory, tt.value, 75, s)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, tr)
			assert.Equal(t, tt.wantExceeded, s.Exceeded(models.Memory))
		})
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	for _, value := range []float64{0.1, 0.4, 0.9} {
		s := NewState()
		events := 0
		for i := 0; i < 5; i++ {
			if _, ok := Evaluate(models.CpuOneMinute, value, 0.4, s); ok {
				events++
			}
		}
		assert.LessOrEqual(t, events, 1, "value %v", value)
	}
}

func TestEvaluateOscillationAtLimit(t *testing.T) {
	s := NewState()
	var got []models.Transition
	for _, v := range []float64{0.5, 0.4, 0.5, 0.4, 0.5, 0.3, 0.4, 0.3} {
		if tr, ok := Evaluate(models.CpuOneMinute, v, 0.4, s); ok {
			got = append(got, tr)
		}
	}
	assert.Equal(t, []models.Transition{models.Warning, models.Restored}, got)
}

func TestEvaluateKindsIndependent(t *testing.T) {
	s := NewState()
	_, ok := Evaluate(models.CpuOneMinute, 2, 1, s)
	assert.True(t, ok)

	assert.True(t, s.Exceeded(models.CpuOneMinute))
	assert.False(t, s.Exceeded(models.CpuFiveMinute))

	tr, ok := Evaluate(models.CpuFiveMinute, 2, 1, s)
	assert.True(t, ok)
	assert.Equal(t, models.Warning, tr)
}

func TestEvaluateInvalidKind(t *testing.T) {
	s := NewState()
	_, ok := Evaluate(models.MetricKind(99), 5, 1, s)
	assert.False(t, ok)
	assert.False(t, s.Exceeded(models.MetricKind(99)))
}

func TestTrackerCPUScenario(t *testing.T) {
	var th models.Thresholds
	th = th.With(models.CpuOneMinute, 0.4).
		With(models.CpuFiveMinute, 0.4).
		With(models.CpuFifteenMinute, 0.4)
	tr := NewTracker(th)

	cpu := []models.MetricKind{models.CpuOneMinute, models.CpuFiveMinute, models.CpuFifteenMinute}

	for _, k := range cpu {
		got, ok := tr.Observe(models.Reading{Kind: k, Value: 0.5})
		assert.True(t, ok)
		assert.Equal(t, models.Warning, got)
	}
	for _, k := range cpu {
		assert.True(t, tr.Snapshot()[k])
	}

	for _, k := range cpu {
		got, ok := tr.Observe(models.Reading{Kind: k, Value: 0.3})
		assert.True(t, ok)
		assert.Equal(t, models.Restored, got)
	}
	for _, k := range cpu {
		assert.False(t, tr.Snapshot()[k])
	}
}

func TestTrackerSnapshotOnlyEnabled(t *testing.T) {
	var th models.Thresholds
	tr := NewTracker(th.With(models.Memory, 75))

	snap := tr.Snapshot()
	assert.Equal(t, map[models.MetricKind]bool{models.Memory: false}, snap)

	snap[models.Memory] = true
	assert.False(t, tr.Snapshot()[models.Memory], "snapshot must be a copy")
}

func TestTrackersDoNotShareState(t *testing.T) {
	var th models.Thresholds
	th = th.With(models.Memory, 75)
	a, b := NewTracker(th), NewTracker(th)

	_, ok := a.Observe(models.Reading{Kind: models.Memory, Value: 90})
	assert.True(t, ok)

	_, ok = b.Observe(models.Reading{Kind: models.Memory, Value: 90})
	assert.True(t, ok)
	assert.Equal(t, 75.0, a.Limit(models.Memory))
}
