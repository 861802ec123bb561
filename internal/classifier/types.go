package classifier

import (
	"errors"
	"strings"
	"time"
)

// ErrEngineNotReady is returned by engines asked to classify before they are initialized
var ErrEngineNotReady = errors.New("classifier engine not ready")

// ContentType is what the user is looking at
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentDocument
	ContentCode
	ContentEmail
	ContentCommunication
	ContentProductivity
	ContentDevelopment
	ContentDesign
	ContentEducation
	ContentFinance
	ContentWebBrowsing
	ContentNews
	ContentShopping
	ContentEntertainment
	ContentSocialMedia
	ContentGaming
)

var contentTypeNames = map[ContentType]string{
	ContentUnknown:       "UNKNOWN",
	ContentDocument:      "DOCUMENT",
	ContentCode:          "CODE",
	ContentEmail:         "EMAIL",
	ContentCommunication: "COMMUNICATION",
	ContentProductivity:  "PRODUCTIVITY",
	ContentDevelopment:   "DEVELOPMENT",
	ContentDesign:        "DESIGN",
	ContentEducation:     "EDUCATION",
	ContentFinance:       "FINANCE",
	ContentWebBrowsing:   "WEB_BROWSING",
	ContentNews:          "NEWS",
	ContentShopping:      "SHOPPING",
	ContentEntertainment: "ENTERTAINMENT",
	ContentSocialMedia:   "SOCIAL_MEDIA",
	ContentGaming:        "GAMING",
}

func (c ContentType) String() string {
	if name, ok := contentTypeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseContentType accepts names like "CODE", "social media" or "social-media"
func ParseContentType(s string) ContentType {
	key := normalizeEnum(s)
	for c, name := range contentTypeNames {
		if name == key {
			return c
		}
	}
	return ContentUnknown
}

// WorkCategory is the kind of work an activity represents
type WorkCategory int

const (
	CategoryUnknown WorkCategory = iota
	CategoryFocusedWork
	CategoryCommunication
	CategoryCreative
	CategoryAnalysis
	CategoryLearning
	CategoryAdministrative
	CategoryMeeting
	CategoryBreakTime
)

var categoryNames = map[WorkCategory]string{
	CategoryUnknown:        "UNKNOWN",
	CategoryFocusedWork:    "FOCUSED_WORK",
	CategoryCommunication:  "COMMUNICATION",
	CategoryCreative:       "CREATIVE",
	CategoryAnalysis:       "ANALYSIS",
	CategoryLearning:       "LEARNING",
	CategoryAdministrative: "ADMINISTRATIVE",
	CategoryMeeting:        "MEETING",
	CategoryBreakTime:      "BREAK_TIME",
}

func (w WorkCategory) String() string {
	if name, ok := categoryNames[w]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseWorkCategory accepts names like "FOCUSED_WORK" or "break time"
func ParseWorkCategory(s string) WorkCategory {
	key := normalizeEnum(s)
	for w, name := range categoryNames {
		if name == key {
			return w
		}
	}
	return CategoryUnknown
}

// Priority ranks how important an activity is, 1 (very low) to 5 (critical)
type Priority int

const (
	PriorityUnset Priority = iota
	PriorityVeryLow
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "VERY_LOW"
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNSET"
	}
}

// ParsePriority accepts a name ("HIGH") or a number ("4")
func ParsePriority(s string) Priority {
	switch normalizeEnum(s) {
	case "VERY_LOW", "1":
		return PriorityVeryLow
	case "LOW", "2":
		return PriorityLow
	case "MEDIUM", "3":
		return PriorityMedium
	case "HIGH", "4":
		return PriorityHigh
	case "CRITICAL", "5":
		return PriorityCritical
	default:
		return PriorityUnset
	}
}

func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ContentAnalysis is the classification of one window/OCR snapshot.
// IsProductive is only ever assigned by PostProcess.
type ContentAnalysis struct {
	ID          string
	Timestamp   time.Time
	Title       string
	Application string
	Engine      string

	ExtractedText string
	Keywords      []string

	ContentType       ContentType
	WorkCategory      WorkCategory
	Priority          Priority
	IsProductive      bool
	IsFocusedWork     bool
	RequiresAttention bool
	DistractionLevel  int // 0-10

	ClassificationConfidence float64
	PriorityConfidence       float64
	CategoryConfidence       float64

	Duration time.Duration
}

// IsZero reports whether the analysis carries no classification
func (a ContentAnalysis) IsZero() bool {
	return a.ContentType == ContentUnknown && a.WorkCategory == CategoryUnknown && a.Timestamp.IsZero()
}
