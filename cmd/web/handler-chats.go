package main

import (
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/donseba/go-htmx"
	"log/slog"
	"net/http"
)

type chatPageData struct {
	BaseTemplateData
	GroupID      string
	ChatID       string
	Name         string
	Chat         models.ChatDetail
	Error        string
	Polling      bool
	PollInterval string
}

func chatURL(groupID, chatID string) string {
	return groupURL(groupID) + "/chats/" + chatID
}

func chatNotFound(groupID string) notFoundPageData {
	return notFoundPageData{
		BaseTemplateData: BaseTemplateData{CurrentPath: "", Flash: ""},
		Title:            "Chat not found",
		Message:          "The chat does not exist or its group was removed.",
		BackURL:          groupURL(groupID),
		BackLabel:        "Back to group",
	}
}

// chatName names the chat after its position in the group. The group is usually cached from the group page.
func (app *application) chatName(r *http.Request, groupID, chatID string) string {
	g, err := app.queries.GroupChats(r.Context(), groupID)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "name chat", errors.SlogError(err))
		return "Chat"
	}
	if i := g.ChatIndex(chatID); i >= 0 {
		return models.ChatDisplayName(i + 1)
	}
	return "Chat"
}

func (app *application) chatShow(w http.ResponseWriter, r *http.Request) {
	groupID, chatID := r.PathValue("groupID"), r.PathValue("chatID")
	detail, err := app.queries.ChatDetail(r.Context(), groupID, chatID)
	if err != nil {
		app.backendError(w, r, err, chatNotFound(groupID))
		return
	}
	app.render(w, r, http.StatusOK, "chat", chatPageData{
		BaseTemplateData: newBaseTemplateData(r),
		GroupID:          groupID,
		ChatID:           chatID,
		Name:             app.chatName(r, groupID, chatID),
		Chat:             detail,
		Error:            "",
		Polling:          detail.Status.IsAnalyzing(),
		PollInterval:     app.pollTrigger(),
	})
}

// chatFragment is polled by the chat page while the chat is being analyzed.
func (app *application) chatFragment(w http.ResponseWriter, r *http.Request) {
	groupID, chatID := r.PathValue("groupID"), r.PathValue("chatID")
	data := chatPageData{
		BaseTemplateData: newBaseTemplateData(r),
		GroupID:          groupID,
		ChatID:           chatID,
		Name:             app.chatName(r, groupID, chatID),
		Chat:             models.ChatDetail{}, //nolint:exhaustruct // filled below
		Error:            "",
		Polling:          true,
		PollInterval:     app.pollTrigger(),
	}
	detail, err := app.queries.ChatDetail(r.Context(), groupID, chatID)
	switch {
	case err == nil:
		data.Chat = detail
		data.Polling = detail.Status.IsAnalyzing()
	case api.IsNotFound(err):
		data.Error = errorMessage(err)
		data.Polling = false
	default:
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "refresh chat", errors.SlogError(err))
		data.Error = errorMessage(err)
		if last, ok := app.queries.LastChatDetail(groupID, chatID); ok {
			data.Chat = last
			data.Polling = last.Status.IsAnalyzing()
		}
	}

	status := http.StatusOK
	if !data.Polling {
		status = htmx.StatusStopPolling
	}
	app.renderTemplate(w, r, status, "chat", "detail", data)
}

// chatMutation runs one of the single chat actions and returns to the chat page.
func (app *application) chatMutation(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	success string,
	mutate func(r *http.Request, groupID, chatID string) error,
) {
	groupID, chatID := r.PathValue("groupID"), r.PathValue("chatID")
	if err := mutate(r, groupID, chatID); err != nil {
		if api.IsNotFound(err) {
			app.backendError(w, r, err, chatNotFound(groupID))
			return
		}
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "chat action failed",
			slog.String("action", action), errors.SlogError(err))
		app.redirectWithFlash(w, r, chatURL(groupID, chatID), "Could not "+action+": "+errorMessage(err))
		return
	}
	app.redirectWithFlash(w, r, chatURL(groupID, chatID), success)
}

func (app *application) chatAnalyze(w http.ResponseWriter, r *http.Request) {
	app.chatMutation(w, r, "analyze chat", "Chat analysis started.",
		func(r *http.Request, groupID, chatID string) error {
			_, err := app.queries.TriggerChatAnalysis(r.Context(), groupID, chatID)
			return err //nolint:wrapcheck // annotated by the backend client
		})
}

func (app *application) chatRegenerate(w http.ResponseWriter, r *http.Request) {
	app.chatMutation(w, r, "regenerate chat", "Chat regeneration started.",
		func(r *http.Request, groupID, chatID string) error {
			_, err := app.queries.RegenerateChat(r.Context(), groupID, chatID)
			return err //nolint:wrapcheck // annotated by the backend client
		})
}
