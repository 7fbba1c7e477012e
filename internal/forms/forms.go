// Package forms parses and validates the group creation form.
package forms

import (
	"bytes"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	// MaxContextFileBytes is the largest accepted context file.
	MaxContextFileBytes = 1 << 20
	// MaxRequestBytes bounds the whole form so that oversized files can still be reported as a validation error.
	MaxRequestBytes = 8 << 20
	MinChats        = 1
	MaxChats        = 20
	DefaultChats    = api.DefaultNumChats
	// CustomBusiness is sent as the business of groups with a custom context.
	CustomBusiness = "custom"
)

var (
	ErrBusinessRequired     = errors.NewSentinel("Select a business context")
	ErrContextFileExtension = errors.NewSentinel("Context file must be a .md file")
	ErrContextFileTooLarge  = errors.NewSentinel("Context file must be ≤ 1 MB")
	ErrInvalidWebsiteURL    = errors.NewSentinel("Website URL must be a valid http or https URL with a hostname")
	ErrNumChatsOutOfRange   = errors.NewSentinel("Number of chats must be between 1 and 20")
)

// ValidateContextFile accepts markdown files of at most MaxContextFileBytes.
func ValidateContextFile(name string, size int64) error {
	if !strings.EqualFold(path.Ext(name), ".md") {
		return ErrContextFileExtension
	}
	if size > MaxContextFileBytes {
		return ErrContextFileTooLarge
	}
	return nil
}

// IsValidHTTPURL reports whether s is an absolute http or https URL with a hostname.
func IsValidHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

// ClampChats clamps n into [MinChats, MaxChats].
func ClampChats(n int) int {
	return min(MaxChats, max(MinChats, n))
}

// ContextMode selects between a preset business and a custom context.
type ContextMode string

const (
	ModePreset ContextMode = "preset"
	ModeCustom ContextMode = "custom"
)

// CreateGroupForm holds the submitted values so the page can be re-rendered after a validation error.
type CreateGroupForm struct {
	Mode       ContextMode
	Business   string
	WebsiteURL string
	NumChats   int
	// FileName is empty when no context file was uploaded.
	FileName    string
	FileSize    int64
	fileContent []byte
	// Error is the form-level validation message.
	Error string
}

// NewCreateGroupForm returns the form's initial values.
func NewCreateGroupForm() CreateGroupForm {
	return CreateGroupForm{ //nolint:exhaustruct // nothing submitted yet
		Mode:     ModePreset,
		NumChats: DefaultChats,
	}
}

// ParseCreateGroupForm reads the multipart form of r. The returned form is not validated yet, see
// [CreateGroupForm.Validate]. Oversized requests are reported through Error rather than as an error.
func ParseCreateGroupForm(r *http.Request) (CreateGroupForm, error) {
	form := NewCreateGroupForm()
	if err := r.ParseMultipartForm(MaxContextFileBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			form.Error = ErrContextFileTooLarge.Error()
			return form, nil
		}
		return form, errors.Wrap(err, "parse multipart form")
	}

	if ContextMode(r.PostFormValue("context_mode")) == ModeCustom {
		form.Mode = ModeCustom
	}
	form.Business = strings.TrimSpace(r.PostFormValue("business"))
	form.WebsiteURL = strings.TrimSpace(r.PostFormValue("website_url"))
	// Non-numeric input counts as zero like an emptied number field.
	n, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("num_chats")))
	if err != nil {
		n = 0
	}
	form.NumChats = n

	if form.Mode != ModeCustom {
		return form, nil
	}
	file, header, err := r.FormFile("context_file")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return form, errors.Wrap(err, "open context file")
	}
	defer func(file multipart.File) {
		_ = file.Close()
	}(file)
	if header.Filename == "" {
		return form, nil
	}
	form.FileName = header.Filename
	form.FileSize = header.Size
	if header.Size <= MaxContextFileBytes {
		if form.fileContent, err = io.ReadAll(io.LimitReader(file, MaxContextFileBytes+1)); err != nil {
			return form, errors.Wrap(err, "read context file", slog.String("filename", header.Filename))
		}
	}
	return form, nil
}

// AttachContextFile sets the context file of a custom form from content read outside a request, e.g., by the CLI.
func (f *CreateGroupForm) AttachContextFile(name string, content []byte) {
	f.FileName = name
	f.FileSize = int64(len(content))
	f.fileContent = nil
	if f.FileSize <= MaxContextFileBytes {
		f.fileContent = content
	}
}

// Validate checks the form in the order the fields appear on the page and sets Error to the first failure.
// An out-of-range number of chats is clamped so that resubmitting succeeds.
func (f *CreateGroupForm) Validate() bool {
	if f.Error != "" {
		return false
	}
	if clamped := ClampChats(f.NumChats); clamped != f.NumChats {
		f.NumChats = clamped
		f.Error = ErrNumChatsOutOfRange.Error()
		return false
	}
	switch f.Mode {
	case ModePreset:
		if f.Business == "" {
			f.Error = ErrBusinessRequired.Error()
			return false
		}
	case ModeCustom:
		if f.FileName != "" {
			if err := ValidateContextFile(f.FileName, f.FileSize); err != nil {
				f.Error = err.Error()
				return false
			}
		}
		if f.WebsiteURL != "" && !IsValidHTTPURL(f.WebsiteURL) {
			f.Error = ErrInvalidWebsiteURL.Error()
			return false
		}
	}
	return true
}

// Params converts a valid form into a create request. Custom contexts may leave both file and URL empty, in which
// case the backend resolves the context itself.
func (f *CreateGroupForm) Params() api.CreateGroupParams {
	params := api.CreateGroupParams{
		Business:    f.Business,
		ContextFile: nil,
		WebsiteURL:  "",
		NumChats:    f.NumChats,
	}
	if f.Mode == ModeCustom {
		params.Business = CustomBusiness
		params.WebsiteURL = f.WebsiteURL
		if f.FileName != "" {
			params.ContextFile = &api.ContextFile{Name: f.FileName, Content: bytes.NewReader(f.fileContent)}
		}
	}
	return params
}
