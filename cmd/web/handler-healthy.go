package main

import (
	"github.com/chatscope/chatscope/internal/errors"
	"net/http"
)

// healthy responds with a JSON object indicating that the server is healthy. The session database has to be
// reachable, the backend does not since pages render its errors.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if err := app.db.Ping(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "ping database"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
