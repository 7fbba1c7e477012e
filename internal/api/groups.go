package api

import (
	"bytes"
	"context"
	"fmt"
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// DefaultNumChats is sent when CreateGroupParams.NumChats is zero.
const DefaultNumChats = 8

// ContextFile is a markdown document describing a custom business.
type ContextFile struct {
	Name    string
	Content io.Reader
}

// CreateGroupParams are the inputs of [Client.CreateGroup]. Empty fields are omitted from the request.
type CreateGroupParams struct {
	Business    string
	ContextFile *ContextFile
	WebsiteURL  string
	NumChats    int
}

func (c *Client) ListBusinesses(ctx context.Context) ([]models.Business, error) {
	var businesses []models.Business
	if err := c.request(ctx, http.MethodGet, "/groups/businesses", nil, nil, &businesses); err != nil {
		return nil, errors.Wrap(err, "list businesses")
	}
	return businesses, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := c.request(ctx, http.MethodGet, "/groups", nil, nil, &groups); err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	return groups, nil
}

// CreateGroup requests generation of a new group of chats as a multipart form.
func (c *Client) CreateGroup(ctx context.Context, params CreateGroupParams) (models.GroupCreated, error) {
	var created models.GroupCreated
	body, contentType, err := params.multipart()
	if err != nil {
		return created, errors.Wrap(err, "encode create group form")
	}
	header := http.Header{}
	header.Set("Content-Type", contentType)
	if err = c.request(ctx, http.MethodPost, "/groups", body, header, &created); err != nil {
		return created, errors.Wrap(err, "create group", slog.String("business", params.Business))
	}
	return created, nil
}

func (p CreateGroupParams) multipart() (*bytes.Buffer, string, error) {
	var (
		buf bytes.Buffer
		err error
	)
	w := multipart.NewWriter(&buf)
	if p.Business != "" {
		if err = w.WriteField("business", p.Business); err != nil {
			return nil, "", errors.Wrap(err, "write business field")
		}
	}
	if p.ContextFile != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="context_file"; filename="%s"`,
			escapeQuotes(p.ContextFile.Name)))
		h.Set("Content-Type", "text/markdown")
		var part io.Writer
		if part, err = w.CreatePart(h); err != nil {
			return nil, "", errors.Wrap(err, "create context file part")
		}
		if _, err = io.Copy(part, p.ContextFile.Content); err != nil {
			return nil, "", errors.Wrap(err, "copy context file")
		}
	}
	if p.WebsiteURL != "" {
		if err = w.WriteField("website_url", p.WebsiteURL); err != nil {
			return nil, "", errors.Wrap(err, "write website_url field")
		}
	}
	numChats := p.NumChats
	if numChats == 0 {
		numChats = DefaultNumChats
	}
	if err = w.WriteField("num_chats", strconv.Itoa(numChats)); err != nil {
		return nil, "", errors.Wrap(err, "write num_chats field")
	}
	if err = w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) TriggerAnalysis(ctx context.Context, groupID string) (models.GroupAnalyzeResult, error) {
	var result models.GroupAnalyzeResult
	path := fmt.Sprintf("/groups/%s/analyze", url.PathEscape(groupID))
	if err := c.request(ctx, http.MethodPost, path, nil, nil, &result); err != nil {
		return result, errors.Wrap(err, "trigger analysis", slog.String("group_id", groupID))
	}
	return result, nil
}

func (c *Client) GetGroupChats(ctx context.Context, groupID string) (models.GroupChats, error) {
	var group models.GroupChats
	path := fmt.Sprintf("/groups/%s/chats", url.PathEscape(groupID))
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &group); err != nil {
		return group, errors.Wrap(err, "get group chats", slog.String("group_id", groupID))
	}
	return group, nil
}
