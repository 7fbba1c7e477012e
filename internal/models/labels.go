package models

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BadgeVariant selects the visual style of a status badge.
type BadgeVariant string

const (
	BadgeDestructive BadgeVariant = "destructive"
	BadgeSuccess     BadgeVariant = "success"
	BadgeWarning     BadgeVariant = "warning"
	BadgeSecondary   BadgeVariant = "secondary"
)

// FormatStatusLabel turns a snake_case status into title-cased words, e.g.,
// "context_gathering_failed" becomes "Context Gathering Failed".
func FormatStatusLabel(status string) string {
	words := strings.Split(status, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
	}
	return strings.Join(words, " ")
}

// Humanize replaces underscores with spaces, e.g., for intents and case types.
func Humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// Label is the display label of the status.
func (s GroupStatus) Label() string {
	return FormatStatusLabel(string(s))
}

// Label is the display label of the status.
func (s ChatStatus) Label() string {
	return FormatStatusLabel(string(s))
}

// Message is a sentence describing the group's state.
func (s GroupStatus) Message() string {
	switch s {
	case GroupGatheringContext:
		return "Fetching website and generating context…"
	case GroupContextGatheringFailed:
		return "Context gathering failed."
	case GroupGenerating:
		return "Generating chats…"
	case GroupGenerated:
		return "All chats generated. Run analysis to continue."
	case GroupGenerationFailed:
		return "Generation failed."
	case GroupAnalyzing:
		return "Analyzing chats…"
	case GroupCompleted:
		return "Analysis complete."
	case GroupAnalysisFailed:
		return "Analysis failed."
	}
	return FormatStatusLabel(string(s))
}

// Badge selects the badge style for the group status.
func (s GroupStatus) Badge() BadgeVariant {
	switch s {
	case GroupContextGatheringFailed, GroupGenerationFailed, GroupAnalysisFailed:
		return BadgeDestructive
	case GroupCompleted:
		return BadgeSuccess
	case GroupGatheringContext, GroupGenerating, GroupAnalyzing:
		return BadgeWarning
	case GroupGenerated:
		return BadgeSecondary
	}
	return BadgeSecondary
}

// Badge selects the badge style for the chat status.
func (s ChatStatus) Badge() BadgeVariant {
	switch s {
	case ChatFailed:
		return BadgeDestructive
	case ChatAnalyzed:
		return BadgeSuccess
	case ChatGenerating, ChatAnalyzing:
		return BadgeWarning
	case ChatPending, ChatGenerated:
		return BadgeSecondary
	}
	return BadgeSecondary
}

// ChatDisplayName names the chat at one-based position n, e.g., "Chat 001". Positions below 1 are shown as 1.
func ChatDisplayName(n int) string {
	return fmt.Sprintf("Chat %03d", max(n, 1))
}
