package forms_test

import (
	"bytes"
	"github.com/chatscope/chatscope/internal/forms"
	"github.com/stretchr/testify/require"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateContextFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		wantErr error
	}{
		{name: "small markdown", file: "notes.md", size: 10 << 10, wantErr: nil},
		{name: "upper case extension", file: "NOTES.MD", size: 10, wantErr: nil},
		{name: "exactly one MiB", file: "notes.md", size: 1 << 20, wantErr: nil},
		{name: "text file", file: "notes.txt", size: 10, wantErr: forms.ErrContextFileExtension},
		{name: "no extension", file: "md", size: 10, wantErr: forms.ErrContextFileExtension},
		{name: "two MiB markdown", file: "notes.md", size: 2 << 20, wantErr: forms.ErrContextFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := forms.ValidateContextFile(tt.file, tt.size)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsValidHTTPURL(t *testing.T) {
	tests := map[string]bool{
		"https://shop.example.com":      true,
		"http://localhost:8080/catalog": true,
		"ftp://example.com":             false,
		"https://":                      false,
		"shop.example.com":              false,
		"not a url":                     false,
		"":                              false,
	}
	for input, want := range tests {
		require.Equal(t, want, forms.IsValidHTTPURL(input), input)
	}
}

func TestClampChats(t *testing.T) {
	require.Equal(t, 1, forms.ClampChats(-3))
	require.Equal(t, 1, forms.ClampChats(0))
	require.Equal(t, 8, forms.ClampChats(8))
	require.Equal(t, 20, forms.ClampChats(20))
	require.Equal(t, 20, forms.ClampChats(21))
}

type upload struct {
	name    string
	content []byte
}

func newMultipartRequest(t *testing.T, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("context_file", file.name)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	r := httptest.NewRequest(http.MethodPost, "/groups", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestCreateGroupForm_preset(t *testing.T) {
	r := newMultipartRequest(t, map[string]string{
		"context_mode": "preset",
		"business":     "brighterly",
		"num_chats":    "5",
		"website_url":  "https://ignored.example.com",
	}, nil)
	form, err := forms.ParseCreateGroupForm(r)
	require.NoError(t, err)
	require.True(t, form.Validate(), form.Error)

	params := form.Params()
	require.Equal(t, "brighterly", params.Business)
	require.Equal(t, 5, params.NumChats)
	require.Nil(t, params.ContextFile)
	require.Empty(t, params.WebsiteURL)
}

func TestCreateGroupForm_custom(t *testing.T) {
	r := newMultipartRequest(t, map[string]string{
		"context_mode": "custom",
		"business":     "brighterly",
		"num_chats":    "3",
		"website_url":  " https://shop.example.com ",
	}, &upload{name: "shop.md", content: []byte("# Shop")})
	form, err := forms.ParseCreateGroupForm(r)
	require.NoError(t, err)
	require.True(t, form.Validate(), form.Error)

	params := form.Params()
	require.Equal(t, forms.CustomBusiness, params.Business)
	require.Equal(t, "https://shop.example.com", params.WebsiteURL)
	require.NotNil(t, params.ContextFile)
	require.Equal(t, "shop.md", params.ContextFile.Name)
	content, err := io.ReadAll(params.ContextFile.Content)
	require.NoError(t, err)
	require.Equal(t, "# Shop", string(content))
}

func TestCreateGroupForm_customWithoutContext(t *testing.T) {
	r := newMultipartRequest(t, map[string]string{"context_mode": "custom", "num_chats": "8"}, nil)
	form, err := forms.ParseCreateGroupForm(r)
	require.NoError(t, err)
	require.True(t, form.Validate(), form.Error)
	params := form.Params()
	require.Equal(t, forms.CustomBusiness, params.Business)
	require.Nil(t, params.ContextFile)
	require.Empty(t, params.WebsiteURL)
}

func TestCreateGroupForm_validationErrors(t *testing.T) {
	tests := []struct {
		name         string
		fields       map[string]string
		file         *upload
		wantError    string
		wantNumChats int
	}{
		{
			name:         "preset without business",
			fields:       map[string]string{"context_mode": "preset", "num_chats": "8"},
			wantError:    "Select a business context",
			wantNumChats: 8,
		},
		{
			name:         "too many chats is clamped",
			fields:       map[string]string{"context_mode": "preset", "business": "howly", "num_chats": "50"},
			wantError:    forms.ErrNumChatsOutOfRange.Error(),
			wantNumChats: 20,
		},
		{
			name:         "non-numeric chats is clamped",
			fields:       map[string]string{"context_mode": "preset", "business": "howly", "num_chats": "many"},
			wantError:    forms.ErrNumChatsOutOfRange.Error(),
			wantNumChats: 1,
		},
		{
			name:         "text context file",
			fields:       map[string]string{"context_mode": "custom", "num_chats": "8"},
			file:         &upload{name: "notes.txt", content: []byte("notes")},
			wantError:    "Context file must be a .md file",
			wantNumChats: 8,
		},
		{
			name:         "oversized context file",
			fields:       map[string]string{"context_mode": "custom", "num_chats": "8"},
			file:         &upload{name: "notes.md", content: bytes.Repeat([]byte("a"), 2<<20)},
			wantError:    "Context file must be ≤ 1 MB",
			wantNumChats: 8,
		},
		{
			name:         "ftp website",
			fields:       map[string]string{"context_mode": "custom", "num_chats": "8", "website_url": "ftp://example.com"},
			wantError:    "Website URL must be a valid http or https URL with a hostname",
			wantNumChats: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, err := forms.ParseCreateGroupForm(newMultipartRequest(t, tt.fields, tt.file))
			require.NoError(t, err)
			require.False(t, form.Validate())
			require.Equal(t, tt.wantError, form.Error)
			require.Equal(t, tt.wantNumChats, form.NumChats)
		})
	}
}

func TestParseCreateGroupForm_requestTooLarge(t *testing.T) {
	r := newMultipartRequest(t, map[string]string{"context_mode": "custom", "num_chats": "8"},
		&upload{name: "huge.md", content: bytes.Repeat([]byte("a"), forms.MaxRequestBytes+1)})
	w := httptest.NewRecorder()
	r.Body = http.MaxBytesReader(w, r.Body, forms.MaxRequestBytes)

	form, err := forms.ParseCreateGroupForm(r)
	require.NoError(t, err)
	require.False(t, form.Validate())
	require.Equal(t, forms.ErrContextFileTooLarge.Error(), form.Error)
}

func TestParseCreateGroupForm_notMultipart(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/groups", strings.NewReader("business=howly"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err := forms.ParseCreateGroupForm(r)
	require.Error(t, err)
}

func TestNewCreateGroupForm(t *testing.T) {
	form := forms.NewCreateGroupForm()
	require.Equal(t, forms.ModePreset, form.Mode)
	require.Equal(t, forms.DefaultChats, form.NumChats)
}

func TestCreateGroupForm_AttachContextFile(t *testing.T) {
	form := forms.NewCreateGroupForm()
	form.Mode = forms.ModeCustom
	form.AttachContextFile("acme.md", []byte("# Acme"))
	require.True(t, form.Validate())

	params := form.Params()
	require.Equal(t, forms.CustomBusiness, params.Business)
	require.NotNil(t, params.ContextFile)
	require.Equal(t, "acme.md", params.ContextFile.Name)
	content, err := io.ReadAll(params.ContextFile.Content)
	require.NoError(t, err)
	require.Equal(t, "# Acme", string(content))

	form.AttachContextFile("acme.md", bytes.Repeat([]byte("a"), forms.MaxContextFileBytes+1))
	require.False(t, form.Validate())
	require.Equal(t, forms.ErrContextFileTooLarge.Error(), form.Error)
}
