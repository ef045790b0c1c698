package course

import (
	"fmt"
	"strings"
	"time"

	"ytcourse/models"
)

// The rule-based generator is the terminal layer of the AI chain. It never
// fails and never calls out, so a course always exists even with every
// external provider down. Output is deterministic for a given input:
// archetypes are scored over an ordered slice, ties go to the earlier entry.

type archetype struct {
	name     string
	keywords []string
	audience string
	themes   [models.CourseDays]string
}

// Ordered by specificity; "general" is the zero-score catch-all.
var archetypes = []archetype{
	{
		name:     "tutorial",
		keywords: []string{"tutorial", "how to", "guide", "step by step", "learn", "beginner", "walkthrough"},
		audience: "Beginners who want hands-on skills",
		themes: [models.CourseDays]string{
			"Getting Started and Setup",
			"Core Concepts Walkthrough",
			"Following Along in Practice",
			"Common Mistakes and Fixes",
			"Building Your First Project",
			"Polishing and Extending",
			"Review and Next Steps",
		},
	},
	{
		name:     "technical",
		keywords: []string{"programming", "code", "coding", "software", "engineering", "architecture", "api", "database", "algorithm"},
		audience: "Developers and technical practitioners",
		themes: [models.CourseDays]string{
			"Problem Space and Terminology",
			"Architecture and Design Overview",
			"Deep Dive into Core Mechanisms",
			"Hands-on Implementation",
			"Testing and Debugging Techniques",
			"Performance and Trade-offs",
			"Integration and Real-world Use",
		},
	},
	{
		name:     "creative",
		keywords: []string{"design", "art", "music", "creative", "drawing", "photography", "writing", "film"},
		audience: "Creatives building their craft",
		themes: [models.CourseDays]string{
			"Inspiration and References",
			"Fundamental Techniques",
			"Style and Voice",
			"Guided Practice Session",
			"Creating an Original Piece",
			"Critique and Iteration",
			"Sharing and Portfolio Building",
		},
	},
	{
		name:     "business",
		keywords: []string{"business", "marketing", "startup", "entrepreneur", "sales", "finance", "strategy", "management"},
		audience: "Professionals and founders",
		themes: [models.CourseDays]string{
			"Market Context and Opportunity",
			"Key Frameworks Explained",
			"Case Study Analysis",
			"Applying the Strategy",
			"Metrics and Measurement",
			"Risk and Decision Making",
			"Action Plan and Execution",
		},
	},
	{
		name:     "educational",
		keywords: []string{"science", "history", "explained", "documentary", "lecture", "theory", "research", "analysis"},
		audience: "Curious learners and students",
		themes: [models.CourseDays]string{
			"Background and Context",
			"Core Ideas Introduced",
			"Evidence and Examples",
			"Competing Perspectives",
			"Connecting the Concepts",
			"Testing Your Understanding",
			"Synthesis and Reflection",
		},
	},
	{
		name:     "general",
		keywords: nil,
		audience: "General learners",
		themes: [models.CourseDays]string{
			"First Watch and Overview",
			"Key Points Breakdown",
			"Deeper Exploration",
			"Practical Application",
			"Discussion and Questions",
			"Review and Reinforcement",
			"Summary and Takeaways",
		},
	},
}

var activityTypes = [models.CourseDays]string{
	"watch", "notes", "practice", "exercise", "project", "review", "assessment",
}

var homeworkByDay = [models.CourseDays]string{
	"Write down three things you expect to learn from this video.",
	"Summarize today's key points in your own words.",
	"Find one external resource that expands on today's theme.",
	"Apply one concept from the video to a real situation.",
	"Continue working on your project for thirty minutes.",
	"Explain the main idea of the video to someone else.",
	"Write a short reflection on what you would explore next.",
}

// classify scores each archetype by keyword hits over the video's text
// fields and returns the best match. Iteration order is fixed so equal
// scores always resolve the same way.
func classify(info *models.VideoInfo) archetype {
	text := strings.ToLower(info.Title + " " + info.Description + " " + strings.Join(info.Tags, " "))

	best := archetypes[len(archetypes)-1]
	bestScore := 0
	for _, a := range archetypes {
		score := 0
		for _, kw := range a.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best
}

// generateRuleBased builds a complete 7-day course from metadata alone.
func generateRuleBased(info *models.VideoInfo, transcript string) *models.Course {
	a := classify(info)

	c := &models.Course{
		Title:              fmt.Sprintf("7-Day Course: %s", info.Title),
		Description:        courseDescription(info, a),
		YouTubeURL:         info.URL,
		TargetAudience:     a.audience,
		EstimatedTotalTime: "8-12 hours",
		DifficultyLevel:    "Beginner",
		FinalProject:       fmt.Sprintf("Create a summary presentation of %q and teach its main ideas to a peer.", info.Title),
		Resources:          resources(info),
		AssessmentCriteria: "Complete daily activities and final project",
	}

	for i := 0; i < models.CourseDays; i++ {
		c.Days = append(c.Days, buildDay(i, a, info, transcript))
	}
	c.Normalize()
	return c
}

func buildDay(i int, a archetype, info *models.VideoInfo, transcript string) models.Day {
	theme := a.themes[i]
	day := models.Day{
		Day:   i + 1,
		Title: fmt.Sprintf("Day %d: %s", i+1, theme),
		Objectives: []string{
			fmt.Sprintf("Understand the %s aspects of the video", strings.ToLower(theme)),
			"Build on the previous day's material",
		},
		ContentSummary: daySummary(i, theme, transcript),
		Activities: []models.Activity{
			{
				Type:         activityTypes[i],
				Description:  fmt.Sprintf("%s: work through %q with today's theme in mind", capitalize(activityTypes[i]), info.Title),
				TimeEstimate: "30 minutes",
			},
			{
				Type:         "notes",
				Description:  "Record questions and insights in your learning journal",
				TimeEstimate: "15 minutes",
			},
		},
		KeyTakeaways: []string{
			fmt.Sprintf("The %s stage of learning this material", strings.ToLower(theme)),
			"Consistent daily practice compounds",
		},
		Homework:      homeworkByDay[i],
		EstimatedTime: "1-1.5 hours",
	}
	if i == 0 {
		day.Objectives[1] = "Get oriented in the video's subject"
	}
	return day
}

func daySummary(i int, theme, transcript string) string {
	if len(transcript) < models.CourseDays*40 {
		return fmt.Sprintf("Focus on %s using the video itself as the primary source.", strings.ToLower(theme))
	}
	// A rough slice of the transcript anchors each day to different content.
	per := len(transcript) / models.CourseDays
	start := i * per
	end := start + min(per, 160)
	if end > len(transcript) {
		end = len(transcript)
	}
	excerpt := strings.TrimSpace(transcript[start:end])
	return fmt.Sprintf("Focus on %s. Anchor passage: %q", strings.ToLower(theme), excerpt)
}

func courseDescription(info *models.VideoInfo, a archetype) string {
	author := info.Author
	if author == "" {
		author = "the creator"
	}
	return fmt.Sprintf("A structured 7-day study plan built around %q by %s, organized as a %s learning path.",
		info.Title, author, a.name)
}

func resources(info *models.VideoInfo) []string {
	res := []string{"Original video: " + info.URL}
	if info.ThumbnailURL != "" {
		res = append(res, "Video thumbnail: "+info.ThumbnailURL)
	}
	res = append(res, "A notebook or document for daily notes")
	return res
}

// buildEmergencyCourse is the outer guard's product: a generic course for
// when the pipeline broke before producing anything usable.
func buildEmergencyCourse(youtubeURL, reason string, hadInfo, hadTranscript bool) *models.Course {
	c := &models.Course{
		Title:       "7-Day Video Study Course",
		Description: "A general-purpose study plan for working through a video when its details could not be retrieved.",
		YouTubeURL:  youtubeURL,
		FallbackInfo: &models.FallbackInfo{
			GeneratedBy:   "emergency_fallback",
			Reason:        reason,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			HadVideoInfo:  hadInfo,
			HadTranscript: hadTranscript,
		},
	}
	c.Normalize()
	return c
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
