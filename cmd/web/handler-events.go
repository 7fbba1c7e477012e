package main

import (
	"bufio"
	"bytes"
	"fmt"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/query"
	"html"
	"log/slog"
	"net/http"
	"time"
)

// Server-sent event names of the group stream.
const (
	eventChats = "chats"
	eventError = "error"
	eventDone  = "done"
)

// writeEvent writes one server-sent event. Every line of data becomes its own data field.
func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return errors.Wrap(err, "write event name")
	}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return errors.Wrap(err, "write event data")
		}
	}
	if err := w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "terminate event")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush event")
	}
	return nil
}

// groupEvents streams the rendered chats fragment of a group every time the polled group changes. The stream
// ends with a done event once the group reaches a terminal status.
func (app *application) groupEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := r.PathValue("groupID")
	rc := http.NewResponseController(w)
	// The stream lives as long as the group is changing, which is longer than the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelDebug, "clear write deadline", errors.SlogError(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	watch := app.queries.WatchGroupChats(groupID)
	defer watch.Close()

	out := bufio.NewWriter(w)
	send := func(event string, data []byte) bool {
		if err := writeEvent(out, event, data); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream closed", errors.SlogError(err))
			return false
		}
		if err := rc.Flush(); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelDebug, "flush event stream", errors.SlogError(err))
			return false
		}
		return true
	}

	var lastSent time.Time
	for {
		state, err := watch.Next(ctx)
		if err != nil {
			if !errors.Is(err, query.ErrClosed) {
				app.logger.LogAttrs(ctx, slog.LevelDebug, "event stream ended", errors.SlogError(err))
			}
			return
		}
		if state.Fetching {
			continue
		}
		if !state.HasValue {
			if state.Err == nil {
				continue
			}
			// Nothing polls a group that was never fetched successfully, so there is nothing left to wait for.
			send(eventError, []byte(html.EscapeString(errorMessage(state.Err))))
			return
		}
		if state.Err == nil && !state.UpdatedAt.After(lastSent) {
			continue
		}
		lastSent = state.UpdatedAt

		var buf bytes.Buffer
		if err = app.executeTemplate(&buf, r, "group", "chats", groupPageData{
			BaseTemplateData: newBaseTemplateData(r),
			Group:            state.Value,
			Error:            refreshError(state.Err),
			Polling:          false,
			PollInterval:     app.pollTrigger(),
			Stream:           false,
		}); err != nil {
			app.logger.LogAttrs(ctx, slog.LevelError, "render group event", errors.SlogError(err))
			return
		}
		if !send(eventChats, buf.Bytes()) {
			return
		}
		if state.Value.Status.IsTerminal() {
			send(eventDone, []byte(state.Value.Status))
			return
		}
	}
}

// refreshError is the banner text of a failed refresh of data that is still shown.
func refreshError(err error) string {
	if err == nil {
		return ""
	}
	return errorMessage(err)
}
