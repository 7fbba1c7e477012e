package main

import (
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/errors"
	"log/slog"
	"net/http"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status))
	http.Error(w, http.StatusText(status), status)
}

type notFoundPageData struct {
	BaseTemplateData
	Title     string
	Message   string
	BackURL   string
	BackLabel string
}

// notFound renders the not-found page. Empty fields fall back to a generic message.
func (app *application) notFound(w http.ResponseWriter, r *http.Request, data notFoundPageData) {
	data.BaseTemplateData = newBaseTemplateData(r)
	app.render(w, r, http.StatusNotFound, "not-found", data)
}

type errorPageData struct {
	BaseTemplateData
	Message string
}

// backendError renders a failed backend call. Missing resources get the not-found page and everything else the
// error banner with the backend's message.
func (app *application) backendError(w http.ResponseWriter, r *http.Request, err error, missing notFoundPageData) {
	if api.IsNotFound(err) {
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "resource not found", errors.SlogError(err))
		app.notFound(w, r, missing)
		return
	}
	app.logger.LogAttrs(r.Context(), slog.LevelWarn, "backend request failed", errors.SlogError(err))
	status := http.StatusBadGateway
	if r.Context().Err() != nil {
		status = http.StatusServiceUnavailable
	}
	app.render(w, r, status, "error", errorPageData{
		BaseTemplateData: newBaseTemplateData(r),
		Message:          errorMessage(err),
	})
}

// errorMessage is the text shown to the user for a failed backend call.
func errorMessage(err error) string {
	var (
		apiErr    *api.Error
		decodeErr *api.DecodeError
	)
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.As(err, &decodeErr) {
		return "The backend returned an unexpected response."
	}
	return "The backend could not be reached. Please try again."
}

// redirectWithFlash redirects to target after a successful form submission and shows message on the next page.
func (app *application) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, message string) {
	app.sessionManager.Put(r.Context(), flashSessionKey, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}
