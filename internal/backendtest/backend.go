// Package backendtest provides an in-process fake of the chat analysis backend.
//
// Groups advance one step every time their chats are read, which lets tests and local development walk through
// the whole lifecycle without the real generation pipeline.
package backendtest

import (
	"encoding/json"
	"fmt"
	"github.com/chatscope/chatscope/internal/models"
	"github.com/google/uuid"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxUploadBytes bounds the multipart form of a create request.
const maxUploadBytes = 2 << 20

// FailingWebsiteMarker makes context gathering fail when it appears in a group's website URL.
const FailingWebsiteMarker = "fail"

// Options tune the fake's progression.
type Options struct {
	// ChatsPerTick is how many chats are generated or analyzed per advancement. Defaults to 3.
	ChatsPerTick int
	// ManualAdvance disables advancing on reads; use [Backend.Advance] instead.
	ManualAdvance bool
	// Businesses overrides the preset business contexts.
	Businesses []models.Business
}

// RecordedRequest is a request the fake received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	// Form holds the multipart values of create requests.
	Form map[string]string
	// FileName is the uploaded context file name, if any.
	FileName string
	// FileContent is the uploaded context file content, if any.
	FileContent string
}

type injectedFailure struct {
	status int
	body   string
}

type fakeChat struct {
	summary  models.ChatSummary
	messages []models.Message
	scenario models.Scenario
	// pendingAnalysis completes an individually triggered analysis on the next read.
	pendingAnalysis bool
	// pendingGeneration completes a regeneration on the next read.
	pendingGeneration bool
	generation        int
	topic             string
}

type fakeGroup struct {
	group models.Group
	chats []*fakeChat
}

// Backend is an [http.Handler] implementing the backend's REST API.
type Backend struct {
	opts     Options
	mux      *http.ServeMux
	mu       sync.Mutex
	groups   map[string]*fakeGroup
	order    []string
	requests []RecordedRequest
	failures map[string][]injectedFailure
	delay    time.Duration
}

// DefaultBusinesses are the preset business contexts served unless overridden.
func DefaultBusinesses() []models.Business {
	ids := []string{"brighterly", "dressly", "howly", "liven", "pawchamp", "relatio", "riseguide", "storyby", "maxbeauty"}
	businesses := make([]models.Business, len(ids))
	for i, id := range ids {
		businesses[i] = models.Business{ID: id, Label: models.FormatStatusLabel(id)}
	}
	return businesses
}

// New creates a fake backend.
func New(opts Options) *Backend {
	if opts.ChatsPerTick <= 0 {
		opts.ChatsPerTick = 3
	}
	if opts.Businesses == nil {
		opts.Businesses = DefaultBusinesses()
	}
	b := &Backend{
		opts:     opts,
		mux:      http.NewServeMux(),
		mu:       sync.Mutex{},
		groups:   map[string]*fakeGroup{},
		order:    nil,
		requests: nil,
		failures: map[string][]injectedFailure{},
		delay:    0,
	}
	b.mux.HandleFunc("GET /groups/businesses", b.listBusinesses)
	b.mux.HandleFunc("GET /groups", b.listGroups)
	b.mux.HandleFunc("POST /groups", b.createGroup)
	b.mux.HandleFunc("POST /groups/{groupID}/analyze", b.analyzeGroup)
	b.mux.HandleFunc("GET /groups/{groupID}/chats", b.groupChats)
	b.mux.HandleFunc("GET /groups/{groupID}/chats/{chatID}", b.chatDetail)
	b.mux.HandleFunc("POST /groups/{groupID}/chats/{chatID}/analyze", b.analyzeChat)
	b.mux.HandleFunc("POST /groups/{groupID}/chats/{chatID}/regenerate", b.regenerateChat)
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec := RecordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Header: r.Header.Clone()}
	key := r.Method + " " + r.URL.EscapedPath()
	var failure *injectedFailure
	if queue := b.failures[key]; len(queue) > 0 {
		failure = &queue[0]
		b.failures[key] = queue[1:]
	}
	delay := b.delay
	if failure != nil || r.Method != http.MethodPost || r.URL.Path != "/groups" {
		b.requests = append(b.requests, rec)
	}
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failure != nil {
		w.WriteHeader(failure.status)
		_, _ = io.WriteString(w, failure.body)
		return
	}
	b.mux.ServeHTTP(w, r)
}

// FailNext makes the next request matching method and escaped path respond with status and the raw body.
func (b *Backend) FailNext(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + path
	b.failures[key] = append(b.failures[key], injectedFailure{status: status, body: body})
}

// SetDelay delays every response, e.g., to observe coalescing of concurrent requests.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Requests returns the requests received so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// Count returns how many requests matched method and escaped path.
func (b *Backend) Count(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Advance moves the group one step forward as a read would without ManualAdvance.
func (b *Backend) Advance(groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.groups[groupID]; ok {
		b.advance(g)
	}
}

// Status returns the current status of the group and whether it exists.
func (b *Backend) Status(groupID string) (models.GroupStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[groupID]
	if !ok {
		return "", false
	}
	return g.group.Status, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func (b *Backend) listBusinesses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.opts.Businesses)
}

func (b *Backend) listGroups(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	groups := make([]models.Group, 0, len(b.order))
	// Newest first.
	for i := len(b.order) - 1; i >= 0; i-- {
		groups = append(groups, b.groups[b.order[i]].group)
	}
	writeJSON(w, http.StatusOK, groups)
}

func (b *Backend) createGroup(w http.ResponseWriter, r *http.Request) {
	rec := RecordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Header: r.Header.Clone(), Form: map[string]string{}}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		b.record(rec)
		writeDetail(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			rec.Form[k] = v[0]
		}
	}
	if fh := r.MultipartForm.File["context_file"]; len(fh) > 0 {
		rec.FileName = fh[0].Filename
		if f, err := fh[0].Open(); err == nil {
			content, _ := io.ReadAll(f)
			_ = f.Close()
			rec.FileContent = string(content)
		}
	}
	b.record(rec)

	business := rec.Form["business"]
	website := rec.Form["website_url"]
	if business == "" && rec.FileName == "" && website == "" {
		writeDetail(w, http.StatusUnprocessableEntity, []map[string]any{
			{"loc": []string{"body", "business"}, "msg": "business, context_file or website_url is required"},
		})
		return
	}
	numChats, err := strconv.Atoi(rec.Form["num_chats"])
	if err != nil || numChats < 1 || numChats > 20 {
		writeDetail(w, http.StatusUnprocessableEntity, "num_chats must be between 1 and 20")
		return
	}

	topic := business
	if topic == "" || topic == "custom" {
		topic = strings.TrimSuffix(rec.FileName, ".md")
		if topic == "" {
			topic = website
		}
	}
	g := &fakeGroup{
		group: models.Group{
			GroupID:               uuid.NewString(),
			Topic:                 topic,
			Status:                models.GroupGatheringContext,
			NumChats:              numChats,
			CreatedAt:             time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
			WebsiteURL:            website,
			ContextGatheringError: "",
			Business:              business,
		},
		chats: nil,
	}
	b.mu.Lock()
	b.groups[g.group.GroupID] = g
	b.order = append(b.order, g.group.GroupID)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models.GroupCreated{
		GroupID:  g.group.GroupID,
		Status:   g.group.Status,
		NumChats: g.group.NumChats,
	})
}

func (b *Backend) record(rec RecordedRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, rec)
}

func (b *Backend) analyzeGroup(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[r.PathValue("groupID")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Group not found")
		return
	}
	if g.group.Status != models.GroupGenerated {
		writeDetail(w, http.StatusConflict, fmt.Sprintf("Group is %s, expected generated", g.group.Status))
		return
	}
	g.group.Status = models.GroupAnalyzing
	for _, c := range g.chats {
		c.summary.Status = models.ChatAnalyzing
	}
	writeJSON(w, http.StatusOK, models.GroupAnalyzeResult{GroupID: g.group.GroupID, Status: g.group.Status})
}

func (b *Backend) groupChats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[r.PathValue("groupID")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Group not found")
		return
	}
	writeJSON(w, http.StatusOK, g.snapshot())
	if !b.opts.ManualAdvance {
		b.advance(g)
	}
}

func (b *Backend) lookupChat(w http.ResponseWriter, r *http.Request) (*fakeGroup, *fakeChat, bool) {
	g, ok := b.groups[r.PathValue("groupID")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Group not found")
		return nil, nil, false
	}
	chatID := r.PathValue("chatID")
	for _, c := range g.chats {
		if c.summary.ChatID == chatID {
			return g, c, true
		}
	}
	writeDetail(w, http.StatusNotFound, "Chat not found")
	return nil, nil, false
}

func (b *Backend) chatDetail(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, c, ok := b.lookupChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.detail())
	if b.opts.ManualAdvance {
		return
	}
	switch {
	case c.pendingAnalysis:
		c.pendingAnalysis = false
		c.analyze()
	case c.pendingGeneration:
		c.pendingGeneration = false
		c.generate()
	}
}

func (b *Backend) analyzeChat(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, c, ok := b.lookupChat(w, r)
	if !ok {
		return
	}
	if !c.summary.Status.IsGenerated() {
		writeDetail(w, http.StatusConflict, "Chat is not generated yet")
		return
	}
	c.summary.Status = models.ChatAnalyzing
	c.summary.Analysis = nil
	c.pendingAnalysis = true
	writeJSON(w, http.StatusOK, c.detail())
}

func (b *Backend) regenerateChat(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, c, ok := b.lookupChat(w, r)
	if !ok {
		return
	}
	c.summary.Status = models.ChatGenerating
	c.summary.Analysis = nil
	c.messages = nil
	c.pendingAnalysis = false
	c.pendingGeneration = true
	writeJSON(w, http.StatusOK, c.detail())
}
