package api

import (
	"context"
	"fmt"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"log/slog"
	"net/http"
	"net/url"
)

func chatPath(groupID, chatID, suffix string) string {
	return fmt.Sprintf("/groups/%s/chats/%s%s", url.PathEscape(groupID), url.PathEscape(chatID), suffix)
}

func (c *Client) GetChatDetail(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	return c.chatRequest(ctx, http.MethodGet, groupID, chatID, "", "get chat detail")
}

func (c *Client) TriggerChatAnalysis(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	return c.chatRequest(ctx, http.MethodPost, groupID, chatID, "/analyze", "trigger chat analysis")
}

func (c *Client) RegenerateChat(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	return c.chatRequest(ctx, http.MethodPost, groupID, chatID, "/regenerate", "regenerate chat")
}

func (c *Client) chatRequest(
	ctx context.Context,
	method, groupID, chatID, suffix, operation string,
) (models.ChatDetail, error) {
	var chat models.ChatDetail
	if err := c.request(ctx, method, chatPath(groupID, chatID, suffix), nil, nil, &chat); err != nil {
		return chat, errors.Wrap(err, operation, slog.String("group_id", groupID), slog.String("chat_id", chatID))
	}
	return chat, nil
}
