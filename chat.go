package people

import (
	"context"
	"net/http"
	"strings"
)

// ChatClient hands off to the chat app: it creates chats and lists the
// friends a chat can be started with.
type ChatClient struct{ client *Client }

// Create creates a chat named name with the given participant ids. The
// backend takes members as one comma-joined string.
func (c *ChatClient) Create(ctx context.Context, name string, participantIDs []string) (*CreatedChat, error) {
	if len(participantIDs) == 0 {
		return nil, ErrNoParticipants
	}
	raw, err := c.client.doRequest(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointChatCreate,
		encoding: encodeJSON,
		json: map[string]string{
			"name":    name,
			"members": strings.Join(participantIDs, ","),
		},
	})
	if err != nil {
		return nil, err
	}
	c.client.cache.Invalidate(InvalidationsFor(MutationCreateChat, "")...)
	chat := c.client.normalize.CreatedChat(raw)
	return &chat, nil
}

// StartWith creates a chat with a single friend, named after that friend.
func (c *ChatClient) StartWith(ctx context.Context, friend Friend) (*CreatedChat, error) {
	name := strings.TrimSpace(friend.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	return c.Create(ctx, name, []string{friend.ID})
}

// NewChatFriends lists the friends available for a new chat.
func (c *ChatClient) NewChatFriends(ctx context.Context) (*NewChat, error) {
	return query(ctx, c.client.cache, NewChatKey(), false, func(ctx context.Context) (*NewChat, error) {
		raw, err := c.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointChatNew})
		if err != nil {
			return nil, err
		}
		nc := c.client.normalize.NewChat(raw)
		return &nc, nil
	})
}

// List lists the caller's chats.
func (c *ChatClient) List(ctx context.Context) ([]ChatSummary, error) {
	return query(ctx, c.client.cache, ChatsKey(), false, func(ctx context.Context) ([]ChatSummary, error) {
		raw, err := c.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointChatList})
		if err != nil {
			return nil, err
		}
		return c.client.normalize.Chats(raw), nil
	})
}
