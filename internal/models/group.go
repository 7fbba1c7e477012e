package models

import (
	"fmt"
	"slices"
	"time"
)

// Business is a preset business context offered by the backend.
type Business struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Group is a batch request for synthetic support chats and their quality analysis.
type Group struct {
	GroupID               string      `json:"group_id"`
	Topic                 string      `json:"topic"`
	Status                GroupStatus `json:"status"`
	NumChats              int         `json:"num_chats"`
	CreatedAt             string      `json:"created_at"`
	WebsiteURL            string      `json:"website_url,omitempty"`
	ContextGatheringError string      `json:"context_gathering_error,omitempty"`
	Business              string      `json:"business,omitempty"`
}

// GroupChats is a group together with the summaries of the chats generated so far.
type GroupChats struct {
	Group
	Chats []ChatSummary `json:"chats"`
}

// GroupCreated is the backend's acknowledgement of a new group.
type GroupCreated struct {
	GroupID  string      `json:"group_id"`
	Status   GroupStatus `json:"status"`
	NumChats int         `json:"num_chats"`
}

// GroupAnalyzeResult is the backend's acknowledgement of a group analysis request.
type GroupAnalyzeResult struct {
	GroupID string      `json:"group_id"`
	Status  GroupStatus `json:"status"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// CreatedTime parses CreatedAt. Timestamps without a zone are taken as UTC.
func (g Group) CreatedTime() (time.Time, bool) {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, g.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormattedCreatedAt renders CreatedAt for display and falls back to the raw value when it cannot be parsed.
func (g Group) FormattedCreatedAt() string {
	t, ok := g.CreatedTime()
	if !ok {
		return g.CreatedAt
	}
	return t.Format("Jan 2, 2006, 15:04")
}

// NewestFirst returns a copy of groups sorted by creation time, newest first. Groups whose creation time
// cannot be parsed keep their relative order at the end.
func NewestFirst(groups []Group) []Group {
	sorted := slices.Clone(groups)
	slices.SortStableFunc(sorted, func(a, b Group) int {
		at, aok := a.CreatedTime()
		bt, bok := b.CreatedTime()
		switch {
		case aok && bok:
			return bt.Compare(at)
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	})
	return sorted
}

// GeneratedCount is the number of chats whose transcript exists.
func (g GroupChats) GeneratedCount() int {
	n := 0
	for _, c := range g.Chats {
		if c.Status.IsGenerated() {
			n++
		}
	}
	return n
}

// AnalyzedCount is the number of chats that finished analysis, successfully or not.
func (g GroupChats) AnalyzedCount() int {
	n := 0
	for _, c := range g.Chats {
		if c.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// ProgressMessage describes the ongoing work for in-progress groups and is empty otherwise.
func (g GroupChats) ProgressMessage() string {
	switch g.Status {
	case GroupGatheringContext:
		return "Fetching website and generating context document…"
	case GroupGenerating:
		return fmt.Sprintf("Generating chats… %d of %d ready", g.GeneratedCount(), g.NumChats)
	case GroupAnalyzing:
		return fmt.Sprintf("Analyzing… %d of %d done", g.AnalyzedCount(), g.NumChats)
	case GroupContextGatheringFailed, GroupGenerated, GroupGenerationFailed, GroupCompleted, GroupAnalysisFailed:
		return ""
	}
	return ""
}

// FailureDetail is the backend's explanation for a failed context gathering step.
func (g GroupChats) FailureDetail() string {
	if g.Status == GroupContextGatheringFailed {
		return g.ContextGatheringError
	}
	return ""
}

// EmptyMessage is shown in place of the chat list while there are no chats.
func (g GroupChats) EmptyMessage() string {
	if g.Status == GroupGatheringContext {
		return "Fetching website and generating context…"
	}
	return "No chats yet. Generation in progress…"
}

// ChatIndex returns the zero-based position of chatID within the group or -1.
func (g GroupChats) ChatIndex(chatID string) int {
	for i, c := range g.Chats {
		if c.ChatID == chatID {
			return i
		}
	}
	return -1
}

// AverageQualityScore averages the scores of analyzed chats. ok is false when no chat is analyzed.
func (g GroupChats) AverageQualityScore() (avg float64, ok bool) {
	var sum, n int
	for _, c := range g.Chats {
		if a := c.Report(); a != nil {
			sum += a.QualityScore
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}
