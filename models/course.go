package models

import "fmt"

// CourseDays is the fixed length of every generated course.
const CourseDays = 7

type Activity struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	TimeEstimate string `json:"time_estimate"`
}

type Day struct {
	Day            int        `json:"day"`
	Title          string     `json:"title"`
	Objectives     []string   `json:"objectives"`
	ContentSummary string     `json:"content_summary"`
	Activities     []Activity `json:"activities"`
	KeyTakeaways   []string   `json:"key_takeaways"`
	Homework       string     `json:"homework,omitempty"`
	EstimatedTime  string     `json:"estimated_time"`
}

// Course is the primary output artifact. It is created once per request and
// never mutated after creation.
type Course struct {
	Title              string   `json:"course_title"`
	Description        string   `json:"course_description"`
	YouTubeURL         string   `json:"youtube_url"`
	TargetAudience     string   `json:"target_audience"`
	EstimatedTotalTime string   `json:"estimated_total_time"`
	DifficultyLevel    string   `json:"difficulty_level"`
	Days               []Day    `json:"days"`
	FinalProject       string   `json:"final_project"`
	Resources          []string `json:"resources"`
	AssessmentCriteria string   `json:"assessment_criteria"`

	// Set only when the course came out of the terminal fallback path.
	FallbackInfo *FallbackInfo `json:"fallback_info,omitempty"`
}

type FallbackInfo struct {
	GeneratedBy   string `json:"generated_by"`
	Reason        string `json:"reason"`
	Timestamp     string `json:"timestamp"`
	HadVideoInfo  bool   `json:"had_video_info"`
	HadTranscript bool   `json:"had_transcript"`
}

// Normalize defaults missing top-level fields and pads the day slice with
// generic sessions until it holds exactly CourseDays entries. Days are never
// truncated below seven here.
func (c *Course) Normalize() {
	if c.Title == "" {
		c.Title = "Generated course_title"
	}
	if c.Description == "" {
		c.Description = "Generated course_description"
	}
	if c.TargetAudience == "" {
		c.TargetAudience = "General learners"
	}
	if c.EstimatedTotalTime == "" {
		c.EstimatedTotalTime = "8-12 hours"
	}
	if c.DifficultyLevel == "" {
		c.DifficultyLevel = "Beginner"
	}
	if c.AssessmentCriteria == "" {
		c.AssessmentCriteria = "Complete daily activities and final project"
	}

	for len(c.Days) < CourseDays {
		n := len(c.Days) + 1
		c.Days = append(c.Days, Day{
			Day:            n,
			Title:          fmt.Sprintf("Day %d: Learning Session", n),
			Objectives:     []string{"Continue learning from the video content"},
			ContentSummary: "Review and practice concepts from the video",
			Activities: []Activity{
				{
					Type:         "review",
					Description:  "Review video content",
					TimeEstimate: "30 minutes",
				},
			},
			KeyTakeaways:  []string{"Key learning points"},
			EstimatedTime: "1 hour",
		})
	}

	// Contiguous 1..7 numbering regardless of what a model returned.
	for i := range c.Days {
		c.Days[i].Day = i + 1
	}
}

// HasSevenDays reports whether the day sequence is exactly CourseDays long
// with contiguous numbering.
func (c *Course) HasSevenDays() bool {
	if len(c.Days) != CourseDays {
		return false
	}
	for i, d := range c.Days {
		if d.Day != i+1 {
			return false
		}
	}
	return true
}
