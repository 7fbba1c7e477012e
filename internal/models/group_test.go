package models_test

import (
	"github.com/chatscope/chatscope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func chatsWithStatuses(statuses ...models.ChatStatus) []models.ChatSummary {
	chats := make([]models.ChatSummary, len(statuses))
	for i, s := range statuses {
		chats[i] = models.ChatSummary{ChatID: models.ChatDisplayName(i + 1), Status: s}
	}
	return chats
}

func TestGroupChats_ProgressMessage(t *testing.T) {
	g := models.GroupChats{
		Group: models.Group{Status: models.GroupGenerating, NumChats: 8},
		Chats: chatsWithStatuses(models.ChatGenerated, models.ChatGenerating, models.ChatPending, models.ChatGenerated),
	}
	require.Equal(t, "Generating chats… 2 of 8 ready", g.ProgressMessage())

	g.Status = models.GroupAnalyzing
	g.Chats = chatsWithStatuses(models.ChatAnalyzed, models.ChatFailed, models.ChatAnalyzing)
	require.Equal(t, "Analyzing… 2 of 8 done", g.ProgressMessage())

	g.Status = models.GroupGatheringContext
	require.Equal(t, "Fetching website and generating context document…", g.ProgressMessage())

	g.Status = models.GroupCompleted
	require.Empty(t, g.ProgressMessage())
}

func TestNewestFirst(t *testing.T) {
	groups := []models.Group{
		{GroupID: "old", CreatedAt: "2025-01-01T10:00:00.000000"},
		{GroupID: "unknown", CreatedAt: "yesterday"},
		{GroupID: "new", CreatedAt: "2025-03-01T10:00:00Z"},
		{GroupID: "mid", CreatedAt: "2025-02-01 10:00:00"},
	}
	sorted := models.NewestFirst(groups)

	ids := make([]string, len(sorted))
	for i, g := range sorted {
		ids[i] = g.GroupID
	}
	require.Equal(t, []string{"new", "mid", "old", "unknown"}, ids)
	require.Equal(t, "old", groups[0].GroupID, "input is not reordered")
}

func TestGroupChats_FailureDetail(t *testing.T) {
	g := models.GroupChats{Group: models.Group{
		Status:                models.GroupGenerationFailed,
		ContextGatheringError: "timeout fetching site",
	}}
	require.Empty(t, g.FailureDetail())
	g.Status = models.GroupContextGatheringFailed
	require.Equal(t, "timeout fetching site", g.FailureDetail())
}

func TestChatSummary_ReportFollowsStatus(t *testing.T) {
	analysis := &models.Analysis{QualityScore: 7}
	c := models.ChatSummary{Status: models.ChatAnalyzing, Analysis: analysis}
	assert.Nil(t, c.Report(), "partial analysis must not be shown before status says analyzed")
	c.Status = models.ChatAnalyzed
	assert.Same(t, analysis, c.Report())

	g := models.GroupChats{Chats: []models.ChatSummary{
		{Status: models.ChatAnalyzed, Analysis: &models.Analysis{QualityScore: 6}},
		{Status: models.ChatAnalyzed, Analysis: &models.Analysis{QualityScore: 9}},
		{Status: models.ChatAnalyzing, Analysis: &models.Analysis{QualityScore: 1}},
	}}
	avg, ok := g.AverageQualityScore()
	require.True(t, ok)
	require.InDelta(t, 7.5, avg, 0.001)
}

func TestChatDetail_ScenarioAndTranscript(t *testing.T) {
	nested := &models.Scenario{CaseType: "conflict", HasTonalErrors: true}
	c := models.ChatDetail{
		Analysis: &models.Analysis{Scenario: nested},
		Messages: []models.Message{
			{Role: models.RoleCustomer, Text: "Hi"},
			{Role: "system", Text: "ignored"},
			{Role: models.RoleAgent, Text: " "},
			{Role: models.RoleAgent, Text: "Hello"},
		},
	}
	require.Same(t, nested, c.EffectiveScenario())
	require.Equal(t, []string{"Tonal errors"}, c.EffectiveScenario().Flags())

	top := &models.Scenario{CaseType: "successful"}
	c.Scenario = top
	require.Same(t, top, c.EffectiveScenario())
	require.Empty(t, top.Flags())

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	require.Equal(t, "Customer", transcript[0].Label())
	require.Equal(t, "Agent", transcript[1].Label())
}

func TestGroup_FormattedCreatedAt(t *testing.T) {
	assert.Equal(t, "Jan 2, 2025, 10:30", models.Group{CreatedAt: "2025-01-02T10:30:00.123456"}.FormattedCreatedAt())
	assert.Equal(t, "Jan 2, 2025, 10:30", models.Group{CreatedAt: "2025-01-02T10:30:00Z"}.FormattedCreatedAt())
	assert.Equal(t, "yesterday", models.Group{CreatedAt: "yesterday"}.FormattedCreatedAt())
}

func TestAgentMistake_String(t *testing.T) {
	index := 2
	assert.Equal(t, "tone: Too curt (message #3)",
		models.AgentMistake{Type: "tone", Description: "Too curt", MessageIndex: &index}.String())
	assert.Equal(t, "logic: Wrong refund policy",
		models.AgentMistake{Type: "logic", Description: "Wrong refund policy"}.String())
	assert.Equal(t, "—: Unclassified", models.AgentMistake{Description: "Unclassified"}.String())
}
