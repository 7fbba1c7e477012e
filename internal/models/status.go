package models

import (
	"github.com/chatscope/chatscope/internal/errors"
	"log/slog"
)

// ErrUnknownStatus is returned when the backend sends a status outside the closed sets below.
var ErrUnknownStatus = errors.NewSentinel("unknown status")

// GroupStatus is the lifecycle state of a [Group]. It only moves forward:
// gathering_context → generating → generated → analyzing → completed, or into one of the failure states.
type GroupStatus string

const (
	GroupGatheringContext       GroupStatus = "gathering_context"
	GroupContextGatheringFailed GroupStatus = "context_gathering_failed"
	GroupGenerating             GroupStatus = "generating"
	GroupGenerated              GroupStatus = "generated"
	GroupGenerationFailed       GroupStatus = "generation_failed"
	GroupAnalyzing              GroupStatus = "analyzing"
	GroupCompleted              GroupStatus = "completed"
	GroupAnalysisFailed         GroupStatus = "analysis_failed"
)

// AllGroupStatuses lists every group status in lifecycle order.
func AllGroupStatuses() []GroupStatus {
	return []GroupStatus{
		GroupGatheringContext,
		GroupContextGatheringFailed,
		GroupGenerating,
		GroupGenerated,
		GroupGenerationFailed,
		GroupAnalyzing,
		GroupCompleted,
		GroupAnalysisFailed,
	}
}

// IsTerminal reports whether no further progress will happen without user action.
func (s GroupStatus) IsTerminal() bool {
	switch s {
	case GroupCompleted, GroupContextGatheringFailed, GroupGenerationFailed, GroupAnalysisFailed:
		return true
	case GroupGatheringContext, GroupGenerating, GroupGenerated, GroupAnalyzing:
		return false
	}
	return false
}

// IsFailed reports whether s is one of the failure states.
func (s GroupStatus) IsFailed() bool {
	switch s {
	case GroupContextGatheringFailed, GroupGenerationFailed, GroupAnalysisFailed:
		return true
	case GroupGatheringContext, GroupGenerating, GroupGenerated, GroupAnalyzing, GroupCompleted:
		return false
	}
	return false
}

// InProgress reports whether the backend is actively working on the group.
func (s GroupStatus) InProgress() bool {
	switch s {
	case GroupGatheringContext, GroupGenerating, GroupAnalyzing:
		return true
	case GroupContextGatheringFailed, GroupGenerated, GroupGenerationFailed, GroupCompleted, GroupAnalysisFailed:
		return false
	}
	return false
}

// CanAnalyze reports whether group analysis may be triggered.
func (s GroupStatus) CanAnalyze() bool {
	return s == GroupGenerated
}

func (s GroupStatus) String() string {
	return string(s)
}

// UnmarshalText rejects statuses this client does not know how to display.
func (s *GroupStatus) UnmarshalText(text []byte) error {
	v := GroupStatus(text)
	for _, known := range AllGroupStatuses() {
		if v == known {
			*s = v
			return nil
		}
	}
	return errors.Wrap(ErrUnknownStatus, "unmarshal group status", slog.String("status", string(text)))
}

// ChatStatus is the lifecycle state of a single chat:
// pending → generating → generated → analyzing → analyzed, or failed.
type ChatStatus string

const (
	ChatPending    ChatStatus = "pending"
	ChatGenerating ChatStatus = "generating"
	ChatGenerated  ChatStatus = "generated"
	ChatAnalyzing  ChatStatus = "analyzing"
	ChatAnalyzed   ChatStatus = "analyzed"
	ChatFailed     ChatStatus = "failed"
)

// AllChatStatuses lists every chat status in lifecycle order.
func AllChatStatuses() []ChatStatus {
	return []ChatStatus{ChatPending, ChatGenerating, ChatGenerated, ChatAnalyzing, ChatAnalyzed, ChatFailed}
}

// IsTerminal reports whether the chat has reached analyzed or failed.
func (s ChatStatus) IsTerminal() bool {
	switch s {
	case ChatAnalyzed, ChatFailed:
		return true
	case ChatPending, ChatGenerating, ChatGenerated, ChatAnalyzing:
		return false
	}
	return false
}

// IsAnalyzing reports whether a chat detail view should keep refreshing.
func (s ChatStatus) IsAnalyzing() bool {
	switch s {
	case ChatAnalyzing:
		return true
	case ChatPending, ChatGenerating, ChatGenerated, ChatAnalyzed, ChatFailed:
		return false
	}
	return false
}

// IsGenerated reports whether the transcript exists, i.e., generation is no longer pending.
func (s ChatStatus) IsGenerated() bool {
	switch s {
	case ChatGenerated, ChatAnalyzing, ChatAnalyzed, ChatFailed:
		return true
	case ChatPending, ChatGenerating:
		return false
	}
	return false
}

// CanAnalyze reports whether a single chat analysis may be requested. Finished analyses may be rerun.
func (s ChatStatus) CanAnalyze() bool {
	switch s {
	case ChatGenerated, ChatAnalyzed, ChatFailed:
		return true
	case ChatPending, ChatGenerating, ChatAnalyzing:
		return false
	}
	return false
}

// CanRegenerate reports whether the transcript may be replaced. Chats with work in flight may not.
func (s ChatStatus) CanRegenerate() bool {
	switch s {
	case ChatGenerated, ChatAnalyzed, ChatFailed:
		return true
	case ChatPending, ChatGenerating, ChatAnalyzing:
		return false
	}
	return false
}

func (s ChatStatus) String() string {
	return string(s)
}

// UnmarshalText rejects statuses this client does not know how to display.
func (s *ChatStatus) UnmarshalText(text []byte) error {
	v := ChatStatus(text)
	for _, known := range AllChatStatuses() {
		if v == known {
			*s = v
			return nil
		}
	}
	return errors.Wrap(ErrUnknownStatus, "unmarshal chat status", slog.String("status", string(text)))
}
