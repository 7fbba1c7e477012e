package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

type Satisfaction string

const (
	Satisfied   Satisfaction = "satisfied"
	Neutral     Satisfaction = "neutral"
	Unsatisfied Satisfaction = "unsatisfied"
)

// Message is a single turn in a chat transcript.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Label is the display name of the speaker.
func (m Message) Label() string {
	if m.Role == RoleCustomer {
		return "Customer"
	}
	return "Agent"
}

// AgentMistake is an error attributed to the agent at MessageIndex (zero-based) in the transcript.
type AgentMistake struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	MessageIndex *int   `json:"message_index,omitempty"`
}

// MessageNumber is the one-based transcript position of the mistake or 0 when unknown.
func (m AgentMistake) MessageNumber() int {
	if m.MessageIndex == nil {
		return 0
	}
	return *m.MessageIndex + 1
}

// String renders the mistake as "type: description (message #n)". The position is left out when unknown.
func (m AgentMistake) String() string {
	kind := m.Type
	if kind == "" {
		kind = "—"
	}
	s := fmt.Sprintf("%s: %s", kind, m.Description)
	if n := m.MessageNumber(); n > 0 {
		s += fmt.Sprintf(" (message #%d)", n)
	}
	return s
}

// Scenario describes how the backend set up a generated chat.
type Scenario struct {
	CaseType                 string `json:"case_type"`
	HasHiddenDissatisfaction bool   `json:"has_hidden_dissatisfaction"`
	HasTonalErrors           bool   `json:"has_tonal_errors"`
	HasLogicalErrors         bool   `json:"has_logical_errors"`
}

// Flags lists the scenario's noteworthy traits for display.
func (s Scenario) Flags() []string {
	var flags []string
	if s.HasHiddenDissatisfaction {
		flags = append(flags, "Hidden dissatisfaction")
	}
	if s.HasTonalErrors {
		flags = append(flags, "Tonal errors")
	}
	if s.HasLogicalErrors {
		flags = append(flags, "Logical errors")
	}
	return flags
}

// Analysis is the quality report of an analyzed chat.
type Analysis struct {
	Intent        string         `json:"intent"`
	Satisfaction  Satisfaction   `json:"satisfaction"`
	QualityScore  int            `json:"quality_score"`
	AgentMistakes []AgentMistake `json:"agent_mistakes"`
	Reasoning     string         `json:"reasoning"`
	// Scenario is present in older backend responses that nest it inside the analysis.
	Scenario *Scenario `json:"scenario,omitempty"`
}

// ChatSummary is the per-chat entry in [GroupChats].
type ChatSummary struct {
	ChatID   string     `json:"chat_id"`
	Status   ChatStatus `json:"status"`
	CaseType string     `json:"case_type,omitempty"`
	Analysis *Analysis  `json:"analysis,omitempty"`
}

// Report returns the analysis only once the chat status says it is analyzed.
func (c ChatSummary) Report() *Analysis {
	if c.Status != ChatAnalyzed {
		return nil
	}
	return c.Analysis
}

// ChatDetail is a chat's full transcript with its scenario and analysis.
type ChatDetail struct {
	ChatID   string     `json:"chat_id"`
	Status   ChatStatus `json:"status"`
	Messages []Message  `json:"messages"`
	Scenario *Scenario  `json:"scenario,omitempty"`
	Analysis *Analysis  `json:"analysis,omitempty"`
}

// Report returns the analysis only once the chat status says it is analyzed.
func (c ChatDetail) Report() *Analysis {
	if c.Status != ChatAnalyzed {
		return nil
	}
	return c.Analysis
}

// EffectiveScenario prefers the top-level scenario over the one nested in the analysis.
func (c ChatDetail) EffectiveScenario() *Scenario {
	if c.Scenario != nil {
		return c.Scenario
	}
	if c.Analysis != nil {
		return c.Analysis.Scenario
	}
	return nil
}

// Transcript returns the messages with a known speaker and non-empty text.
func (c ChatDetail) Transcript() []Message {
	messages := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if (m.Role == RoleCustomer || m.Role == RoleAgent) && strings.TrimSpace(m.Text) != "" {
			messages = append(messages, m)
		}
	}
	return messages
}
