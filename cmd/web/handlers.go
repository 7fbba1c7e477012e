package main

import (
	"bytes"
	"fmt"
	"github.com/chatscope/chatscope/internal/contexthelpers"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

// pageTemplate returns a template for the given page name.
//
// pageName corresponds to directory inside the pages folder of the templates. It has to include a template named
// "page" and a template named "title".
func (app *application) pageTemplate(pageName string) (*template.Template, error) {
	files := []string{"base.gohtml"}

	pageTemplateFiles, err := fs.Glob(app.templates, fmt.Sprintf("pages/%s/*.gohtml", pageName))
	if err != nil {
		return nil, errors.Wrap(err, "glob page template files")
	}
	if len(pageTemplateFiles) == 0 {
		return nil, errors.New("page has no templates", slog.String("page", pageName))
	}
	files = append(files, pageTemplateFiles...)

	// We need to initialize the FuncMap before parsing the files. These will be overridden in the render function.
	t, err := template.New(pageName).Funcs(template.FuncMap{
		"nonce": func() template.HTMLAttr {
			panic("not implemented")
		},
		"csrf": func() template.HTML {
			panic("not implemented")
		},
		"chatName": models.ChatDisplayName,
		"humanize": models.Humanize,
		"inc": func(i int) int {
			return i + 1
		},
	}).ParseFS(app.templates, files...)
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	return t, nil
}

// render writes the full page.
func (app *application) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	app.renderTemplate(w, r, status, page, "base", data)
}

// renderTemplate writes the named template of a page, e.g., the fragment htmx swaps in when polling.
func (app *application) renderTemplate(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	page string,
	name string,
	data any,
) {
	buf := new(bytes.Buffer)
	if err := app.executeTemplate(buf, r, page, name, data); err != nil {
		app.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = buf.WriteTo(w)
}

func (app *application) executeTemplate(buf *bytes.Buffer, r *http.Request, page, name string, data any) error {
	t, err := app.pageTemplate(page)
	if err != nil {
		return errors.Wrap(err, "parse template", slog.String("template", page))
	}

	ctx := r.Context()
	nonce := fmt.Sprintf("nonce=\"%s\"", contexthelpers.CSPNonce(ctx))
	csrf := fmt.Sprintf("<input type=\"hidden\" name=\"csrf_token\" value=\"%s\"/>", contexthelpers.CSRFToken(ctx))
	t.Funcs(template.FuncMap{
		"nonce": func() template.HTMLAttr {
			return template.HTMLAttr(nonce) //nolint:gosec // we trust the nonce since it's not provided by user.
		},
		"csrf": func() template.HTML {
			return template.HTML(csrf) //nolint:gosec // we trust the csrf since it's not provided by user.
		},
	})
	if err = t.ExecuteTemplate(buf, name, data); err != nil {
		return errors.Wrap(err, "execute template", slog.String("template", page), slog.String("name", name))
	}
	return nil
}
