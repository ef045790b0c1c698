package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcourse/models"
)

func sevenDayCourse() *models.Course {
	c := &models.Course{Title: "t"}
	c.Normalize()
	return c
}

func TestQualityGrade(t *testing.T) {
	tests := []struct {
		name       string
		metadata   int // winning layer, -1 for none
		transcript int
		ai         int
		sevenDays  bool
		want       string
	}{
		{"all primary with bonus", LayerPrimary, LayerPrimary, LayerPrimary, true, "A+"},
		{"all primary no bonus", LayerPrimary, LayerPrimary, LayerPrimary, false, "A"},
		{"all secondary with bonus", LayerSecondary, LayerSecondary, LayerSecondary, true, "A"},
		{"all tertiary with bonus", LayerTertiary, LayerTertiary, LayerTertiary, true, "C"},
		{"metadata only", LayerPrimary, -1, -1, true, "C"},
		{"no transcript strong rest", LayerPrimary, -1, LayerPrimary, true, "B"},
		{"nothing succeeded", -1, -1, -1, false, "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			if tt.metadata >= 0 {
				m.MarkMetadata(tt.metadata, true)
			}
			if tt.transcript >= 0 {
				m.MarkTranscript(tt.transcript, true)
			}
			if tt.ai >= 0 {
				m.MarkAI(tt.ai, true)
			}
			var course *models.Course
			if tt.sevenDays {
				course = sevenDayCourse()
			}
			assert.Equal(t, tt.want, m.QualityGrade(course))
		})
	}
}

func TestReliabilityGrade(t *testing.T) {
	m := New()
	m.MarkMetadata(LayerPrimary, true)
	m.MarkTranscript(LayerPrimary, true)
	m.MarkAI(LayerPrimary, true)

	// One success per stage: 0.4/3 + 0.3/3 + 0.3/3 = 1/3.
	assert.InDelta(t, 1.0/3.0, m.OverallSuccessRate(), 1e-9)
	assert.Equal(t, "D", m.ReliabilityGrade())

	empty := New()
	assert.Equal(t, "D", empty.ReliabilityGrade())
}

func TestCostAndSpeedCategories(t *testing.T) {
	m := New()
	assert.Equal(t, "Low", m.CostCategory())
	m.AddCost(0.80)
	assert.Equal(t, "Medium", m.CostCategory())
	m.AddCost(1.00)
	assert.Equal(t, "High", m.CostCategory())

	m.SetProcessingTime(45)
	assert.Equal(t, "Fast", m.SpeedCategory())
	m.SetProcessingTime(100)
	assert.Equal(t, "Medium", m.SpeedCategory())
	m.SetProcessingTime(300)
	assert.Equal(t, "Slow", m.SpeedCategory())
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.MarkMetadata(LayerSecondary, true)
	m.MarkTranscript(LayerTertiary, true)
	m.MarkAI(LayerPrimary, true)
	m.MarkDownload(true, 12.5)
	m.AddCost(0.02)
	m.AddError("first")
	m.AddWarning("careful")
	m.AddRetry()
	m.MarkCatchAll()
	m.SetProcessingTime(30)

	snap := m.Snapshot()

	api, ok := snap["api_success"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, api["youtube_api"])
	assert.Equal(t, true, api["backup_api"])

	ai, ok := snap["ai_success"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, ai["openrouter"])

	qm, ok := snap["quality_metrics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1, qm["errors_count"])
	assert.Equal(t, 1, qm["retries"])
	assert.Equal(t, 1, qm["catch_all_fired"])

	assert.Equal(t, true, snap["mp4_success"])
	assert.Equal(t, 0.02, snap["total_cost"])
	assert.Equal(t, "Low", snap["cost_category"])
	assert.Equal(t, "Fast", snap["speed_category"])
}

func TestErrorTailKeepsLastFive(t *testing.T) {
	m := New()
	for i := 0; i < 8; i++ {
		m.AddError("e")
	}
	snap := m.Snapshot()
	qm := snap["quality_metrics"].(map[string]interface{})
	assert.Equal(t, 8, qm["errors_count"])
	assert.Len(t, qm["errors"], 5)
}

func TestFlags(t *testing.T) {
	m := New()
	m.MarkMetadata(LayerTertiary, true)
	m.MarkAI(LayerTertiary, true)
	f := m.Flags()
	assert.True(t, f.MetadataScrape)
	assert.True(t, f.AIFallback)
	assert.False(t, f.MetadataAPI)
	assert.False(t, f.TranscriptPrimary)
}
