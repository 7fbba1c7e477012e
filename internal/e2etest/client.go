package e2etest

import (
	"bytes"
	"context"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/chatscope/chatscope/internal/errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
)

type Client struct {
	client *http.Client
	url    string
}

// FormFile is a file attached to a multipart form submission.
type FormFile struct {
	Field   string
	Name    string
	Content []byte
}

// NewClient creates an HTTP client with a cookie jar so that sessions and CSRF cookies survive between requests.
func NewClient(url string) (*Client, error) {
	jar, err := newLoopbackJar()
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}
	return &Client{
		client: &http.Client{Jar: jar}, //nolint:exhaustruct // defaults are fine for tests
		url:    url,
	}, nil
}

// URL is the base URL of the server.
func (c *Client) URL() string {
	return c.url
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	probe := func() error {
		resp, err := c.Get(ctx, urlPath)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errors.New("endpoint not ready", slog.Int("status", resp.StatusCode))
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(100*time.Millisecond), ctx) //nolint:mnd // 100ms
	if err := backoff.Retry(probe, b); err != nil {
		return errors.Wrap(err, "timeout waiting for endpoint to be ready", slog.String("path", urlPath))
	}
	return nil
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, urlPath, nil, nil)
}

// GetHTMX fetches a URL the way htmx does when it swaps a fragment.
func (c *Client) GetHTMX(ctx context.Context, urlPath string) (*http.Response, error) {
	header := http.Header{}
	header.Set("HX-Request", "true")
	return c.do(ctx, http.MethodGet, urlPath, nil, header)
}

// GetDoc fetches a URL and returns a goquery document.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, urlPath)
	if err != nil {
		return nil, errors.Wrap(err, "client get")
	}
	if http.StatusOK != resp.StatusCode {
		_ = resp.Body.Close()
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode),
			slog.String("path", urlPath))
	}
	return Document(resp)
}

// Document parses and closes the response body.
func Document(resp *http.Response) (*goquery.Document, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "create document from reader")
	}
	return doc, nil
}

func (c *Client) do(
	ctx context.Context,
	method, urlPath string,
	body io.Reader,
	header http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request", slog.String("method", method), slog.String("path", urlPath))
	}
	return resp, nil
}

func extractCSRFToken(form *goquery.Selection) (string, error) {
	csrfToken, ok := form.Find("input[name=csrf_token]").Attr("value")
	if !ok {
		return "", errors.New("csrf_token not found in form")
	}
	return csrfToken, nil
}

// SubmitForm fetches the page at formURLPath, fills the form with action formActionURLPath with fields and files,
// and submits it. Redirects are followed. The caller owns the response body.
//
// Hidden inputs and checked radio buttons of the form are submitted unless fields overrides them.
func (c *Client) SubmitForm(
	ctx context.Context,
	formURLPath string,
	formActionURLPath string,
	fields map[string]string,
	files ...FormFile,
) (*http.Response, error) {
	doc, err := c.GetDoc(ctx, formURLPath)
	if err != nil {
		return nil, errors.Wrap(err, "get document")
	}
	formSelector := fmt.Sprintf("form[action='%s']", formActionURLPath)
	form := doc.Find(formSelector)
	if form.Length() != 1 {
		return nil, errors.New("form not found", slog.String("selector", formSelector))
	}
	var csrfToken string
	if csrfToken, err = extractCSRFToken(form); err != nil {
		return nil, errors.Wrap(err, "extract CSRF token")
	}

	values := neturl.Values{}
	form.Find("input[type=hidden], input[type=radio][checked]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		value, _ := s.Attr("value")
		if name != "" {
			values.Set(name, value)
		}
	})
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("csrf_token", csrfToken)

	header := http.Header{}
	var body io.Reader
	if enctype, _ := form.Attr("enctype"); enctype == "multipart/form-data" {
		var (
			buf         bytes.Buffer
			contentType string
		)
		if contentType, err = writeMultipart(&buf, values, files); err != nil {
			return nil, errors.Wrap(err, "encode multipart form")
		}
		header.Set("Content-Type", contentType)
		body = &buf
	} else {
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		body = strings.NewReader(values.Encode())
	}
	return c.do(ctx, http.MethodPost, formActionURLPath, body, header)
}

func writeMultipart(buf *bytes.Buffer, values neturl.Values, files []FormFile) (string, error) {
	w := multipart.NewWriter(buf)
	for k, vs := range values {
		for _, v := range vs {
			if err := w.WriteField(k, v); err != nil {
				return "", errors.Wrap(err, "write field", slog.String("field", k))
			}
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return "", errors.Wrap(err, "create form file", slog.String("field", f.Field))
		}
		if _, err = part.Write(f.Content); err != nil {
			return "", errors.Wrap(err, "write form file", slog.String("field", f.Field))
		}
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "close multipart writer")
	}
	return w.FormDataContentType(), nil
}
