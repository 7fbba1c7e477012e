package backendtest

import (
	"fmt"
	"github.com/chatscope/chatscope/internal/models"
	"strings"
)

var caseTypes = []string{"successful", "problematic", "conflict", "agent_error"}

// advance moves g one step through its lifecycle. Callers hold b.mu.
func (b *Backend) advance(g *fakeGroup) {
	switch g.group.Status {
	case models.GroupGatheringContext:
		if strings.Contains(g.group.WebsiteURL, FailingWebsiteMarker) {
			g.group.Status = models.GroupContextGatheringFailed
			g.group.ContextGatheringError = fmt.Sprintf("could not fetch %s", g.group.WebsiteURL)
			return
		}
		g.group.Status = models.GroupGenerating
	case models.GroupGenerating:
		for range b.opts.ChatsPerTick {
			if len(g.chats) == g.group.NumChats {
				break
			}
			c := newFakeChat(g.group.Topic, len(g.chats))
			c.generate()
			g.chats = append(g.chats, c)
		}
		if len(g.chats) == g.group.NumChats {
			g.group.Status = models.GroupGenerated
		}
	case models.GroupAnalyzing:
		analyzed := 0
		for _, c := range g.chats {
			if analyzed == b.opts.ChatsPerTick {
				break
			}
			if c.summary.Status == models.ChatAnalyzing {
				c.analyze()
				analyzed++
			}
		}
		for _, c := range g.chats {
			if !c.summary.Status.IsTerminal() {
				return
			}
		}
		g.group.Status = models.GroupCompleted
	case models.GroupContextGatheringFailed, models.GroupGenerated, models.GroupGenerationFailed,
		models.GroupCompleted, models.GroupAnalysisFailed:
	}
}

func (g *fakeGroup) snapshot() models.GroupChats {
	chats := make([]models.ChatSummary, len(g.chats))
	for i, c := range g.chats {
		chats[i] = c.summary
	}
	return models.GroupChats{Group: g.group, Chats: chats}
}

func newFakeChat(topic string, index int) *fakeChat {
	caseType := caseTypes[index%len(caseTypes)]
	return &fakeChat{
		summary: models.ChatSummary{
			ChatID:   fmt.Sprintf("chat-%03d", index+1),
			Status:   models.ChatPending,
			CaseType: caseType,
			Analysis: nil,
		},
		messages: nil,
		scenario: models.Scenario{
			CaseType:                 caseType,
			HasHiddenDissatisfaction: caseType == "problematic",
			HasTonalErrors:           caseType == "conflict",
			HasLogicalErrors:         caseType == "agent_error",
		},
		pendingAnalysis:   false,
		pendingGeneration: false,
		generation:        0,
		topic:             topic,
	}
}

func (c *fakeChat) generate() {
	c.generation++
	c.summary.Status = models.ChatGenerated
	c.messages = []models.Message{
		{Role: models.RoleCustomer, Text: fmt.Sprintf("Hi, I have a question about my %s order (%s, take %d).",
			c.topic, c.summary.ChatID, c.generation)},
		{Role: models.RoleAgent, Text: "Thanks for reaching out! Let me check that for you."},
		{Role: models.RoleCustomer, Text: "It has been a week already."},
		{Role: models.RoleAgent, Text: "I see the delay, I have escalated it and you will get an update today."},
	}
}

func (c *fakeChat) analyze() {
	var (
		mistakes     []models.AgentMistake
		satisfaction = models.Satisfied
		score        = 9
	)
	if c.scenario.HasLogicalErrors || c.scenario.HasTonalErrors {
		index := 1
		mistakes = []models.AgentMistake{{
			Type:         "tone",
			Description:  "Generic reassurance without concrete next steps",
			MessageIndex: &index,
		}}
		satisfaction = models.Unsatisfied
		score = 4
	} else if c.scenario.HasHiddenDissatisfaction {
		satisfaction = models.Neutral
		score = 6
	}
	c.summary.Status = models.ChatAnalyzed
	c.summary.Analysis = &models.Analysis{
		Intent:        "delivery_delay",
		Satisfaction:  satisfaction,
		QualityScore:  score,
		AgentMistakes: mistakes,
		Reasoning:     fmt.Sprintf("The agent handled a %s case.", models.Humanize(c.scenario.CaseType)),
		Scenario:      nil,
	}
}

func (c *fakeChat) detail() models.ChatDetail {
	scenario := c.scenario
	return models.ChatDetail{
		ChatID:   c.summary.ChatID,
		Status:   c.summary.Status,
		Messages: c.messages,
		Scenario: &scenario,
		Analysis: c.summary.Analysis,
	}
}
