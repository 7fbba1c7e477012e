package main

import (
	"github.com/chatscope/chatscope/internal/contexthelpers"
	"net/http"
)

type BaseTemplateData struct {
	CurrentPath string
	// Flash is a one-off message from the previous request, e.g., after a redirect from a form submission.
	Flash string
}

func newBaseTemplateData(r *http.Request) BaseTemplateData {
	ctx := r.Context()
	return BaseTemplateData{
		CurrentPath: contexthelpers.CurrentPath(ctx),
		Flash:       contexthelpers.Flash(ctx),
	}
}
