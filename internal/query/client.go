package query

import (
	"context"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/models"
	"log/slog"
	"time"
)

// Backend is the subset of [api.Client] the query layer reads from and mutates through.
type Backend interface {
	ListBusinesses(ctx context.Context) ([]models.Business, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	CreateGroup(ctx context.Context, params api.CreateGroupParams) (models.GroupCreated, error)
	TriggerAnalysis(ctx context.Context, groupID string) (models.GroupAnalyzeResult, error)
	GetGroupChats(ctx context.Context, groupID string) (models.GroupChats, error)
	GetChatDetail(ctx context.Context, groupID, chatID string) (models.ChatDetail, error)
	TriggerChatAnalysis(ctx context.Context, groupID, chatID string) (models.ChatDetail, error)
	RegenerateChat(ctx context.Context, groupID, chatID string) (models.ChatDetail, error)
}

// Client is the typed front of the cache. Reads go through the cache and mutations invalidate the keys whose
// data they change.
type Client struct {
	cache   *Cache
	backend Backend
}

func NewClient(backend Backend, opts Options, logger *slog.Logger) *Client {
	return &Client{
		cache:   NewCache(opts, logger),
		backend: backend,
	}
}

// Close stops polling and closes every watch.
func (c *Client) Close() {
	c.cache.Close()
}

// Cache exposes the underlying cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

// GroupChatsShouldPoll keeps polling a group until it reaches a terminal status.
func GroupChatsShouldPoll(value any) bool {
	g, ok := value.(models.GroupChats)
	return ok && !g.Status.IsTerminal()
}

// ChatDetailShouldPoll keeps polling a chat while it is being analyzed.
func ChatDetailShouldPoll(value any) bool {
	d, ok := value.(models.ChatDetail)
	return ok && d.Status.IsAnalyzing()
}

func (c *Client) businessesDef() Definition {
	return Definition{
		Fetch: func(ctx context.Context) (any, error) {
			businesses, err := c.backend.ListBusinesses(ctx)
			return businesses, err //nolint:wrapcheck // annotated by the backend
		},
		ShouldPoll: nil,
	}
}

func (c *Client) groupsDef() Definition {
	return Definition{
		Fetch: func(ctx context.Context) (any, error) {
			groups, err := c.backend.ListGroups(ctx)
			return groups, err //nolint:wrapcheck // annotated by the backend
		},
		ShouldPoll: nil,
	}
}

func (c *Client) groupChatsDef(groupID string) Definition {
	return Definition{
		Fetch: func(ctx context.Context) (any, error) {
			g, err := c.backend.GetGroupChats(ctx, groupID)
			return g, err //nolint:wrapcheck // annotated by the backend
		},
		ShouldPoll: GroupChatsShouldPoll,
	}
}

func (c *Client) chatDetailDef(groupID, chatID string) Definition {
	return Definition{
		Fetch: func(ctx context.Context) (any, error) {
			d, err := c.backend.GetChatDetail(ctx, groupID, chatID)
			return d, err //nolint:wrapcheck // annotated by the backend
		},
		ShouldPoll: ChatDetailShouldPoll,
	}
}

func fetchAs[T any](ctx context.Context, cache *Cache, key Key, def Definition) (T, error) {
	var zero T
	v, err := cache.Fetch(ctx, key, def)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return t, nil
}

func (c *Client) Businesses(ctx context.Context) ([]models.Business, error) {
	return fetchAs[[]models.Business](ctx, c.cache, BusinessesKey(), c.businessesDef())
}

func (c *Client) Groups(ctx context.Context) ([]models.Group, error) {
	return fetchAs[[]models.Group](ctx, c.cache, GroupsKey(), c.groupsDef())
}

func (c *Client) GroupChats(ctx context.Context, groupID string) (models.GroupChats, error) {
	return fetchAs[models.GroupChats](ctx, c.cache, GroupChatsKey(groupID), c.groupChatsDef(groupID))
}

func (c *Client) ChatDetail(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	return fetchAs[models.ChatDetail](ctx, c.cache, ChatDetailKey(groupID, chatID), c.chatDetailDef(groupID, chatID))
}

func peekAs[T any](cache *Cache, key Key) (T, bool) {
	var zero T
	s, ok := cache.Peek(key)
	if !ok || !s.HasValue() {
		return zero, false
	}
	t, ok := s.Value.(T)
	return t, ok
}

// LastGroupChats returns the last successfully fetched group without fetching.
func (c *Client) LastGroupChats(groupID string) (models.GroupChats, bool) {
	return peekAs[models.GroupChats](c.cache, GroupChatsKey(groupID))
}

// LastChatDetail returns the last successfully fetched chat without fetching.
func (c *Client) LastChatDetail(groupID, chatID string) (models.ChatDetail, bool) {
	return peekAs[models.ChatDetail](c.cache, ChatDetailKey(groupID, chatID))
}

// State is a typed [Snapshot].
type State[T any] struct {
	Value     T
	HasValue  bool
	Err       error
	UpdatedAt time.Time
	Fetching  bool
}

// StateOf converts a snapshot whose value is a T.
func StateOf[T any](s Snapshot) State[T] {
	v, _ := s.Value.(T)
	return State[T]{
		Value:     v,
		HasValue:  s.HasValue(),
		Err:       s.Err,
		UpdatedAt: s.UpdatedAt,
		Fetching:  s.Fetching,
	}
}

// Watch follows a key while it is open. Its data is polled for as long as the key's poll predicate holds.
type Watch[T any] struct {
	sub *Subscription
}

// C receives raw snapshots, see [StateOf].
func (w *Watch[T]) C() <-chan Snapshot {
	return w.sub.C()
}

// Next blocks until the next snapshot arrives. It returns ErrClosed once the watch or the client is closed.
func (w *Watch[T]) Next(ctx context.Context) (State[T], error) {
	select {
	case s, ok := <-w.sub.C():
		if !ok {
			return State[T]{}, ErrClosed //nolint:exhaustruct // no state
		}
		return StateOf[T](s), nil
	case <-ctx.Done():
		return State[T]{}, ctx.Err() //nolint:exhaustruct,wrapcheck // caller's cancellation
	}
}

// Close stops following the key.
func (w *Watch[T]) Close() {
	w.sub.Close()
}

func (c *Client) WatchGroupChats(groupID string) *Watch[models.GroupChats] {
	return &Watch[models.GroupChats]{sub: c.cache.Subscribe(GroupChatsKey(groupID), c.groupChatsDef(groupID))}
}

func (c *Client) WatchChatDetail(groupID, chatID string) *Watch[models.ChatDetail] {
	return &Watch[models.ChatDetail]{
		sub: c.cache.Subscribe(ChatDetailKey(groupID, chatID), c.chatDetailDef(groupID, chatID)),
	}
}

// CreateGroup creates a group and invalidates the group list.
func (c *Client) CreateGroup(ctx context.Context, params api.CreateGroupParams) (models.GroupCreated, error) {
	created, err := c.backend.CreateGroup(ctx, params)
	if err != nil {
		return created, err //nolint:wrapcheck // annotated by the backend
	}
	c.cache.Invalidate(GroupsKey(), GroupChatsKey(created.GroupID))
	return created, nil
}

// TriggerAnalysis starts analysis of every generated chat of a group and invalidates the group.
func (c *Client) TriggerAnalysis(ctx context.Context, groupID string) (models.GroupAnalyzeResult, error) {
	res, err := c.backend.TriggerAnalysis(ctx, groupID)
	if err != nil {
		return res, err //nolint:wrapcheck // annotated by the backend
	}
	c.cache.Invalidate(GroupChatsKey(groupID), GroupsKey())
	return res, nil
}

// TriggerChatAnalysis starts analysis of one chat and invalidates both the chat and its group.
func (c *Client) TriggerChatAnalysis(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	d, err := c.backend.TriggerChatAnalysis(ctx, groupID, chatID)
	if err != nil {
		return d, err //nolint:wrapcheck // annotated by the backend
	}
	c.cache.Invalidate(GroupChatsKey(groupID), ChatDetailKey(groupID, chatID))
	return d, nil
}

// RegenerateChat replaces a chat's transcript and invalidates both the chat and its group.
func (c *Client) RegenerateChat(ctx context.Context, groupID, chatID string) (models.ChatDetail, error) {
	d, err := c.backend.RegenerateChat(ctx, groupID, chatID)
	if err != nil {
		return d, err //nolint:wrapcheck // annotated by the backend
	}
	c.cache.Invalidate(GroupChatsKey(groupID), ChatDetailKey(groupID, chatID))
	return d, nil
}
