package api_test

import (
	"context"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/backendtest"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/chatscope/chatscope/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newBackendClient(t *testing.T, opts backendtest.Options) (*api.Client, *backendtest.Server) {
	t.Helper()
	srv := backendtest.NewServer(opts)
	t.Cleanup(srv.Close)
	client, err := api.NewClient(api.Config{BaseURL: srv.URL, TunnelBypass: true}, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	return client, srv
}

func lastRequest(t *testing.T, srv *backendtest.Server) backendtest.RecordedRequest {
	t.Helper()
	requests := srv.Requests()
	require.NotEmpty(t, requests)
	return requests[len(requests)-1]
}

func TestCreateGroup_presetOmitsOptionalFields(t *testing.T) {
	client, srv := newBackendClient(t, backendtest.Options{})
	created, err := client.CreateGroup(context.Background(), api.CreateGroupParams{Business: "brighterly", NumChats: 5})
	require.NoError(t, err)
	require.NotEmpty(t, created.GroupID)
	require.Equal(t, 5, created.NumChats)

	req := lastRequest(t, srv)
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/groups", req.Path)
	require.True(t, strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data"))
	require.Equal(t, map[string]string{"business": "brighterly", "num_chats": "5"}, req.Form)
	require.Empty(t, req.FileName)
}

func TestCreateGroup_customWithFileAndURL(t *testing.T) {
	client, srv := newBackendClient(t, backendtest.Options{})
	_, err := client.CreateGroup(context.Background(), api.CreateGroupParams{
		Business:    "custom",
		ContextFile: &api.ContextFile{Name: `acme "notes".md`, Content: strings.NewReader("# Acme\nWe sell anvils.")},
		WebsiteURL:  "https://shop.example.com",
		NumChats:    0,
	})
	require.NoError(t, err)

	req := lastRequest(t, srv)
	require.Equal(t, "custom", req.Form["business"])
	require.Equal(t, "https://shop.example.com", req.Form["website_url"])
	require.Equal(t, "8", req.Form["num_chats"], "zero defaults to eight chats")
	require.Equal(t, `acme "notes".md`, req.FileName)
	require.Equal(t, "# Acme\nWe sell anvils.", req.FileContent)
}

func TestCreateGroup_validationDetail(t *testing.T) {
	client, _ := newBackendClient(t, backendtest.Options{})
	_, err := client.CreateGroup(context.Background(), api.CreateGroupParams{NumChats: 3})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Contains(t, apiErr.Message, `"msg":"business, context_file or website_url is required"`)
}

func TestGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	client, srv := newBackendClient(t, backendtest.Options{ChatsPerTick: 3})
	created, err := client.CreateGroup(ctx, api.CreateGroupParams{Business: "howly", NumChats: 8})
	require.NoError(t, err)
	groupID := created.GroupID

	var seen []models.GroupStatus
	for range 10 {
		group, err := client.GetGroupChats(ctx, groupID)
		require.NoError(t, err)
		if len(seen) == 0 || seen[len(seen)-1] != group.Status {
			seen = append(seen, group.Status)
		}
		switch group.Status {
		case models.GroupGenerating:
			assert.Less(t, len(group.Chats), 8)
		case models.GroupGenerated:
			require.Len(t, group.Chats, 8)
			for _, c := range group.Chats {
				assert.Nil(t, c.Report())
				assert.Nil(t, c.Analysis)
			}
		default:
		}
		if group.Status == models.GroupGenerated {
			break
		}
	}
	require.Equal(t, []models.GroupStatus{
		models.GroupGatheringContext, models.GroupGenerating, models.GroupGenerated,
	}, seen)

	result, err := client.TriggerAnalysis(ctx, groupID)
	require.NoError(t, err)
	require.Equal(t, models.GroupAnalyzing, result.Status)
	require.Equal(t, 1, srv.Count(http.MethodPost, "/groups/"+groupID+"/analyze"))

	for range 10 {
		group, err := client.GetGroupChats(ctx, groupID)
		require.NoError(t, err)
		if group.Status == models.GroupCompleted {
			for _, c := range group.Chats {
				require.NotNil(t, c.Report())
			}
			return
		}
	}
	t.Fatal("group never completed")
}

func TestChats(t *testing.T) {
	ctx := context.Background()
	client, srv := newBackendClient(t, backendtest.Options{ChatsPerTick: 20, ManualAdvance: true})
	created, err := client.CreateGroup(ctx, api.CreateGroupParams{Business: "liven", NumChats: 2})
	require.NoError(t, err)
	srv.Advance(created.GroupID)
	srv.Advance(created.GroupID)

	group, err := client.GetGroupChats(ctx, created.GroupID)
	require.NoError(t, err)
	require.Equal(t, models.GroupGenerated, group.Status)
	chatID := group.Chats[0].ChatID

	chat, err := client.GetChatDetail(ctx, created.GroupID, chatID)
	require.NoError(t, err)
	require.Equal(t, models.ChatGenerated, chat.Status)
	require.NotEmpty(t, chat.Transcript())
	require.NotNil(t, chat.EffectiveScenario())

	chat, err = client.TriggerChatAnalysis(ctx, created.GroupID, chatID)
	require.NoError(t, err)
	require.Equal(t, models.ChatAnalyzing, chat.Status)

	chat, err = client.RegenerateChat(ctx, created.GroupID, chatID)
	require.NoError(t, err)
	require.Equal(t, models.ChatGenerating, chat.Status)
	require.Empty(t, chat.Transcript())

	_, err = client.GetChatDetail(ctx, created.GroupID, "missing chat")
	require.True(t, api.IsNotFound(err))
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Chat not found", apiErr.Message)
	require.Equal(t, "/groups/"+created.GroupID+"/chats/missing%20chat", lastRequest(t, srv).Path)
}

func TestGetGroupChats_notFound(t *testing.T) {
	client, _ := newBackendClient(t, backendtest.Options{})
	_, err := client.GetGroupChats(context.Background(), "nope")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "Group not found", apiErr.Message)
}
