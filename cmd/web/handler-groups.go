package main

import (
	"bytes"
	"fmt"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/catalog"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/export"
	"github.com/chatscope/chatscope/internal/forms"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/donseba/go-htmx"
	"log/slog"
	"net/http"
)

const (
	lastBusinessSessionKey = "last_business"
	lastNumChatsSessionKey = "last_num_chats"
)

type groupsPageData struct {
	BaseTemplateData
	Groups []models.Group
	Error  string
}

func (app *application) groupsList(w http.ResponseWriter, r *http.Request) {
	data := groupsPageData{BaseTemplateData: newBaseTemplateData(r), Groups: nil, Error: ""}
	groups, err := app.queries.Groups(r.Context())
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "list groups", errors.SlogError(err))
		data.Error = errorMessage(err)
	}
	data.Groups = groups
	app.render(w, r, http.StatusOK, "groups", data)
}

type newGroupPageData struct {
	BaseTemplateData
	Form            forms.CreateGroupForm
	Businesses      []catalog.Business
	BusinessesError string
	MinChats        int
	MaxChats        int
}

func (app *application) renderNewGroup(w http.ResponseWriter, r *http.Request, status int, form forms.CreateGroupForm) {
	data := newGroupPageData{
		BaseTemplateData: newBaseTemplateData(r),
		Form:             form,
		Businesses:       nil,
		BusinessesError:  "",
		MinChats:         forms.MinChats,
		MaxChats:         forms.MaxChats,
	}
	businesses, err := app.queries.Businesses(r.Context())
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "list businesses", errors.SlogError(err))
		data.BusinessesError = errorMessage(err)
	}
	data.Businesses = app.catalog.Decorate(businesses)
	app.render(w, r, status, "new-group", data)
}

// groupNew shows the creation form prefilled with the values of the previous successful submission.
func (app *application) groupNew(w http.ResponseWriter, r *http.Request) {
	form := forms.NewCreateGroupForm()
	if business := app.sessionManager.GetString(r.Context(), lastBusinessSessionKey); business != "" {
		form.Business = business
	}
	if n := app.sessionManager.GetInt(r.Context(), lastNumChatsSessionKey); n > 0 {
		form.NumChats = n
	}
	app.renderNewGroup(w, r, http.StatusOK, form)
}

func (app *application) groupCreate(w http.ResponseWriter, r *http.Request) {
	form, err := forms.ParseCreateGroupForm(r)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "parse create group form", errors.SlogError(err))
		app.clientError(w, r, http.StatusBadRequest)
		return
	}
	if !form.Validate() {
		app.renderNewGroup(w, r, http.StatusUnprocessableEntity, form)
		return
	}

	created, err := app.queries.CreateGroup(r.Context(), form.Params())
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "create group", errors.SlogError(err))
		form.Error = errorMessage(err)
		status := http.StatusBadGateway
		if code := api.StatusCode(err); code >= 400 && code < 500 {
			status = http.StatusUnprocessableEntity
		}
		app.renderNewGroup(w, r, status, form)
		return
	}

	if form.Mode == forms.ModePreset {
		app.sessionManager.Put(r.Context(), lastBusinessSessionKey, form.Business)
	}
	app.sessionManager.Put(r.Context(), lastNumChatsSessionKey, form.NumChats)
	app.logger.LogAttrs(r.Context(), slog.LevelInfo, "group created",
		slog.String("group_id", created.GroupID), slog.Int("num_chats", created.NumChats))
	app.redirectWithFlash(w, r, groupURL(created.GroupID), "Group created. Generating chats…")
}

type groupPageData struct {
	BaseTemplateData
	Group        models.GroupChats
	Error        string
	Polling      bool
	PollInterval string
	// Stream subscribes the page to the group's event stream. Streamed pages are never polled.
	Stream bool
}

func groupURL(groupID string) string {
	return "/groups/" + groupID
}

func groupNotFound(groupID string) notFoundPageData {
	return notFoundPageData{
		BaseTemplateData: BaseTemplateData{CurrentPath: "", Flash: ""},
		Title:            "Group not found",
		Message:          fmt.Sprintf("Group %s does not exist.", groupID),
		BackURL:          "/groups",
		BackLabel:        "Back to groups",
	}
}

// pollTrigger renders the poll interval for hx-trigger.
func (app *application) pollTrigger() string {
	return fmt.Sprintf("%dms", app.pollInterval.Milliseconds())
}

func (app *application) groupShow(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	g, err := app.queries.GroupChats(r.Context(), groupID)
	if err != nil {
		app.backendError(w, r, err, groupNotFound(groupID))
		return
	}
	live := !g.Status.IsTerminal()
	app.render(w, r, http.StatusOK, "group", groupPageData{
		BaseTemplateData: newBaseTemplateData(r),
		Group:            g,
		Error:            "",
		Polling:          live && !app.streamGroups,
		PollInterval:     app.pollTrigger(),
		Stream:           live && app.streamGroups,
	})
}

// groupChatsFragment is polled by the group page. A failed refresh keeps showing the last known chats, and a
// terminal group responds with htmx's stop polling status.
func (app *application) groupChatsFragment(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	data := groupPageData{
		BaseTemplateData: newBaseTemplateData(r),
		Group:            models.GroupChats{}, //nolint:exhaustruct // filled below
		Error:            "",
		Polling:          true,
		PollInterval:     app.pollTrigger(),
		Stream:           false,
	}
	g, err := app.queries.GroupChats(r.Context(), groupID)
	switch {
	case err == nil:
		data.Group = g
	case api.IsNotFound(err):
		data.Error = errorMessage(err)
		data.Polling = false
	default:
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "refresh group chats", errors.SlogError(err))
		data.Error = errorMessage(err)
		if last, ok := app.queries.LastGroupChats(groupID); ok {
			data.Group = last
		}
	}
	data.Group.GroupID = groupID
	if data.Group.Status.IsTerminal() {
		data.Polling = false
	}

	status := http.StatusOK
	if !data.Polling {
		status = htmx.StatusStopPolling
	}
	app.renderTemplate(w, r, status, "group", "chats", data)
}

func (app *application) groupAnalyze(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	if _, err := app.queries.TriggerAnalysis(r.Context(), groupID); err != nil {
		if api.IsNotFound(err) {
			app.backendError(w, r, err, groupNotFound(groupID))
			return
		}
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "trigger analysis", errors.SlogError(err))
		app.redirectWithFlash(w, r, groupURL(groupID), "Could not start analysis: "+errorMessage(err))
		return
	}
	app.redirectWithFlash(w, r, groupURL(groupID), "Analysis started.")
}

// groupExport downloads the group's chats and analyses as a spreadsheet.
func (app *application) groupExport(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")
	g, err := app.queries.GroupChats(r.Context(), groupID)
	if err != nil {
		app.backendError(w, r, err, groupNotFound(groupID))
		return
	}
	var buf bytes.Buffer
	if err = export.WriteGroup(&buf, g); err != nil {
		app.serverError(w, r, errors.Wrap(err, "export group", slog.String("group_id", groupID)))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(g)))
	_, _ = buf.WriteTo(w)
}
