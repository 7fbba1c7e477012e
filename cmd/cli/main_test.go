package main

import (
	"bytes"
	"context"
	"github.com/chatscope/chatscope/internal/backendtest"
	"github.com/chatscope/chatscope/internal/export"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/chatscope/chatscope/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var createdGroupID = regexp.MustCompile(`Created group (\S+) `)

type cli struct {
	backend *backendtest.Server
}

func newCLI(t *testing.T, opts backendtest.Options) *cli {
	t.Helper()
	backend := backendtest.NewServer(opts)
	t.Cleanup(backend.Close)
	return &cli{backend: backend}
}

// run executes the CLI with args and returns what it wrote to stdout.
func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd, cleanup := newRootCmd(testhelpers.LookupEnv(map[string]string{
		"CHATSCOPE_API_BASE_URL":  c.backend.URL,
		"CHATSCOPE_POLL_INTERVAL": "20ms",
	}))
	defer cleanup()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func (c *cli) createGroup(t *testing.T, args ...string) string {
	t.Helper()
	out := c.mustRun(t, append([]string{"groups", "create"}, args...)...)
	m := createdGroupID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	return m[1]
}

func TestBusinesses(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	out := c.mustRun(t, "businesses")
	require.Contains(t, out, "ID")
	for _, b := range backendtest.DefaultBusinesses() {
		require.Contains(t, out, b.ID)
		require.Contains(t, out, b.Label)
	}
}

func TestGroupsList(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	require.Equal(t, "No groups yet.\n", c.mustRun(t, "groups", "list"))

	older := c.createGroup(t, "--business", "howly", "--num-chats", "2")
	time.Sleep(2 * time.Millisecond)
	newer := c.createGroup(t, "--business", "liven", "--num-chats", "2")
	out := c.mustRun(t, "groups", "list")
	require.Contains(t, out, "TOPIC")
	require.Contains(t, out, older)
	require.Less(t, strings.Index(out, newer), strings.Index(out, older), "newest first")
}

func TestGroupsCreate_wait(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	out := c.mustRun(t, "groups", "create", "--business", "liven", "--num-chats", "4", "--wait")

	require.Contains(t, out, "Created group")
	require.Regexp(t, `Status:\s+Generated`, out)
	for i := 1; i <= 4; i++ {
		require.Contains(t, out, models.ChatDisplayName(i))
	}
	require.NotContains(t, out, "Chat 005")
}

func TestGroupsCreate_customContextFile(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	path := filepath.Join(t.TempDir(), "acme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Acme\nWe sell anvils."), 0o600))

	c.createGroup(t, "--context-file", path, "--website-url", "https://acme.example", "--num-chats", "1")

	var create *backendtest.RecordedRequest
	for _, r := range c.backend.Requests() {
		if r.Method == http.MethodPost && r.Path == "/groups" {
			create = &r
		}
	}
	require.NotNil(t, create)
	require.Equal(t, "custom", create.Form["business"])
	require.Equal(t, "https://acme.example", create.Form["website_url"])
	require.Equal(t, "acme.md", create.FileName)
	require.Contains(t, create.FileContent, "We sell anvils.")
}

func TestGroupsCreate_invalidFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no business", args: nil, wantErr: "Select a business context"},
		{name: "too many chats", args: []string{"--business", "howly", "--num-chats", "21"},
			wantErr: "Number of chats must be between 1 and 20"},
		{name: "invalid website", args: []string{"--website-url", "ftp://example.com"},
			wantErr: "Website URL must be a valid http or https URL"},
		{name: "preset and custom", args: []string{"--business", "howly", "--website-url", "https://a.example"},
			wantErr: "--business cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t, backendtest.Options{})
			_, err := c.run(t, append([]string{"groups", "create"}, tt.args...)...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
			require.Zero(t, c.backend.Count(http.MethodPost, "/groups"), "nothing is sent")
		})
	}
}

func TestGroupsShow_watchContextGatheringFailed(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	id := c.createGroup(t, "--website-url", "https://fail.example")

	out := c.mustRun(t, "groups", "show", id, "--watch")
	require.Contains(t, out, "Context Gathering Failed")
	require.Contains(t, out, "could not fetch https://fail.example")
}

func TestGroupsShow_notFound(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	_, err := c.run(t, "groups", "show", "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "get group")
}

func TestGroupsAnalyze_wait(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	id := c.createGroup(t, "--business", "pawchamp", "--num-chats", "2", "--wait")

	out := c.mustRun(t, "groups", "analyze", id, "--wait")
	require.Contains(t, out, "Analysis started")
	require.Regexp(t, `Status:\s+Completed`, out)
	require.Contains(t, out, "Average score:")
	require.Regexp(t, `Chat 001\s+chat-001\s+Analyzed`, out)
}

func TestGroupsExport(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	id := c.createGroup(t, "--business", "dressly", "--num-chats", "3", "--wait")
	path := filepath.Join(t.TempDir(), "group.xlsx")

	out := c.mustRun(t, "groups", "export", id, "--out", path)
	require.Equal(t, "Wrote "+path+"\n", out)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(export.ChatsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4, "header and three chats")
}

func TestChats(t *testing.T) {
	c := newCLI(t, backendtest.Options{ManualAdvance: true})
	id := c.createGroup(t, "--business", "relatio", "--num-chats", "2")
	c.backend.Advance(id)
	c.backend.Advance(id)

	out := c.mustRun(t, "chats", "show", id, "chat-001")
	require.Contains(t, out, "chat-001 (Generated)")
	require.Contains(t, out, " 1. Customer: ")
	require.Contains(t, out, "Scenario: successful")
	require.Contains(t, out, "Not analyzed yet.")

	out = c.mustRun(t, "chats", "analyze", id, "chat-001")
	require.Equal(t, "Chat analysis started (Analyzing)\n", out)
	out = c.mustRun(t, "chats", "show", id, "chat-001")
	require.Contains(t, out, "Analysis in progress…")

	out = c.mustRun(t, "chats", "regenerate", id, "chat-002")
	require.True(t, strings.HasPrefix(out, "Chat regeneration started"), out)
}

func TestChatsAnalyze_wait(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	id := c.createGroup(t, "--business", "howly", "--num-chats", "1", "--wait")

	out := c.mustRun(t, "chats", "analyze", id, "chat-001", "--wait")
	require.Contains(t, out, "Intent: delivery delay")
	require.Contains(t, out, "Quality score: 9")
	require.Contains(t, out, "No mistakes found.")
}

func TestChatsShow_notFound(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	id := c.createGroup(t, "--business", "howly", "--num-chats", "1")
	_, err := c.run(t, "chats", "show", id, "chat-999")
	require.Error(t, err)
}

func TestInvalidAPIURL(t *testing.T) {
	c := newCLI(t, backendtest.Options{})
	_, err := c.run(t, "--api-url", "localhost:8000", "groups", "list")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid base URL")
}
