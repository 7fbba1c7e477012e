package main

import (
	"github.com/chatscope/chatscope/internal/forms"
	"github.com/justinas/alice"
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	session := alice.New(app.sessionManager.LoadAndSave, app.noSurf, commonContext, app.flash)

	mux.Handle("GET /{$}", http.RedirectHandler("/groups", http.StatusSeeOther))
	mux.Handle("GET /groups", session.ThenFunc(app.groupsList))
	mux.Handle("GET /groups/new", session.ThenFunc(app.groupNew))
	mux.Handle("POST /groups", alice.New(app.sessionManager.LoadAndSave, limitRequestBody(forms.MaxRequestBytes),
		app.noSurf, commonContext, app.flash).ThenFunc(app.groupCreate))
	mux.Handle("GET /groups/{groupID}", session.ThenFunc(app.groupShow))
	mux.Handle("GET /groups/{groupID}/chats", session.ThenFunc(app.groupChatsFragment))
	mux.Handle("POST /groups/{groupID}/analyze", session.ThenFunc(app.groupAnalyze))
	mux.Handle("GET /groups/{groupID}/export.xlsx", session.ThenFunc(app.groupExport))
	mux.Handle("GET /groups/{groupID}/chats/{chatID}", session.ThenFunc(app.chatShow))
	mux.Handle("GET /groups/{groupID}/chats/{chatID}/fragment", session.ThenFunc(app.chatFragment))
	mux.Handle("POST /groups/{groupID}/chats/{chatID}/analyze", session.ThenFunc(app.chatAnalyze))
	mux.Handle("POST /groups/{groupID}/chats/{chatID}/regenerate", session.ThenFunc(app.chatRegenerate))

	mux.HandleFunc("GET /api/healthy", app.healthy)

	// Event streams outlive the request timeout, so they bypass it and only load the session.
	streams := http.NewServeMux()
	streams.Handle("GET /groups/{groupID}/events",
		alice.New(app.serverSentEventMiddleware, app.noSurf, commonContext).ThenFunc(app.groupEvents))
	streams.Handle("/", timeoutHandler(mux, defaultTimeout))

	return alice.New(app.recoverPanic, app.logRequest, app.secureHeaders).Then(streams)
}
