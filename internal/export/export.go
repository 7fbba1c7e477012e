// Package export writes a group's chats and analyses as an Excel workbook.
package export

import (
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/xuri/excelize/v2"
	"io"
	"log/slog"
	"math"
	"strings"
)

const (
	SummarySheet = "Summary"
	ChatsSheet   = "Chats"
)

var chatColumns = []string{
	"Chat", "Chat ID", "Status", "Case type", "Intent", "Satisfaction", "Quality score", "Agent mistakes", "Reasoning",
}

// ContentType is the media type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FileName suggests a download name for the workbook of g.
func FileName(g models.GroupChats) string {
	id := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, g.GroupID)
	if id == "" {
		return "chatscope-group.xlsx"
	}
	return "chatscope-" + id + ".xlsx"
}

// WriteGroup writes g as a workbook with a summary sheet and one row per chat. Analysis columns stay empty for
// chats that are not analyzed yet.
func WriteGroup(w io.Writer, g models.GroupChats) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return errors.Wrap(err, "rename default sheet")
	}
	if _, err := f.NewSheet(ChatsSheet); err != nil {
		return errors.Wrap(err, "create chats sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}) //nolint:exhaustruct // only bold
	if err != nil {
		return errors.Wrap(err, "create header style")
	}

	if err = writeSummary(f, g, bold); err != nil {
		return errors.Wrap(err, "write summary", slog.String("group_id", g.GroupID))
	}
	if err = writeChats(f, g, bold); err != nil {
		return errors.Wrap(err, "write chats", slog.String("group_id", g.GroupID))
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func writeSummary(f *excelize.File, g models.GroupChats, bold int) error {
	var average any = ""
	if avg, ok := g.AverageQualityScore(); ok {
		average = math.Round(avg*10) / 10 //nolint:mnd // one decimal
	}
	rows := [][]any{
		{"Group ID", g.GroupID},
		{"Topic", g.Topic},
		{"Status", g.Status.Label()},
		{"Chats", g.NumChats},
		{"Generated", g.GeneratedCount()},
		{"Analyzed", g.AnalyzedCount()},
		{"Average quality score", average},
		{"Created", g.FormattedCreatedAt()},
		{"Website", g.WebsiteURL},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		if err = f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return errors.Wrap(err, "set summary row", slog.Int("row", i+1))
		}
	}
	if err := f.SetColStyle(SummarySheet, "A", bold); err != nil {
		return errors.Wrap(err, "style labels")
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 24); err != nil { //nolint:mnd // fits the longest label
		return errors.Wrap(err, "set label width")
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 48); err != nil { //nolint:mnd // fits UUIDs
		return errors.Wrap(err, "set value width")
	}
	return nil
}

func writeChats(f *excelize.File, g models.GroupChats, bold int) error {
	header := make([]any, len(chatColumns))
	for i, c := range chatColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(ChatsSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "set header")
	}
	if err := f.SetRowStyle(ChatsSheet, 1, 1, bold); err != nil {
		return errors.Wrap(err, "style header")
	}

	for i, c := range g.Chats {
		row := []any{models.ChatDisplayName(i + 1), c.ChatID, c.Status.Label(), models.Humanize(c.CaseType)}
		if a := c.Report(); a != nil {
			mistakes := make([]string, len(a.AgentMistakes))
			for j, m := range a.AgentMistakes {
				mistakes[j] = m.String()
			}
			row = append(row, models.Humanize(a.Intent), models.FormatStatusLabel(string(a.Satisfaction)),
				a.QualityScore, strings.Join(mistakes, "\n"), a.Reasoning)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2) //nolint:mnd // below the header
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		if err = f.SetSheetRow(ChatsSheet, cell, &row); err != nil {
			return errors.Wrap(err, "set chat row", slog.String("chat_id", c.ChatID))
		}
	}

	last, err := excelize.CoordinatesToCellName(len(chatColumns), 1)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	if err = f.AutoFilter(ChatsSheet, "A1:"+last, nil); err != nil {
		return errors.Wrap(err, "add filter")
	}
	if err = f.SetPanes(ChatsSheet, &excelize.Panes{ //nolint:exhaustruct // freeze the header only
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return errors.Wrap(err, "freeze header")
	}
	return nil
}
