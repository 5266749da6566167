package people

import (
	"context"
	"net/http"
	"net/url"
)

// FriendsClient handles friends, invitations and user search.
type FriendsClient struct{ client *Client }

// List returns the normalized friends list, served from the cache when fresh.
func (f *FriendsClient) List(ctx context.Context) (*FriendsListView, error) {
	return query(ctx, f.client.cache, FriendsKey(), false, f.fetchList)
}

// ListFresh is List, but a stale entry is refetched before returning.
func (f *FriendsClient) ListFresh(ctx context.Context) (*FriendsListView, error) {
	return query(ctx, f.client.cache, FriendsKey(), true, f.fetchList)
}

func (f *FriendsClient) fetchList(ctx context.Context) (*FriendsListView, error) {
	raw, err := f.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointFriendsList})
	if err != nil {
		return nil, err
	}
	view := f.client.normalize.FriendsList(raw)
	return &view, nil
}

// Search searches all users (global directory) by name.
func (f *FriendsClient) Search(ctx context.Context, q string) (*SearchResults, error) {
	return f.search(ctx, FriendsSearchKey(q), EndpointFriendsSearch, q)
}

// SearchLocal searches users local to this server by name.
func (f *FriendsClient) SearchLocal(ctx context.Context, q string) (*SearchResults, error) {
	return f.search(ctx, UsersSearchKey(q), EndpointUsersSearch, q)
}

func (f *FriendsClient) search(ctx context.Context, key CacheKey, e Endpoint, q string) (*SearchResults, error) {
	return query(ctx, f.client.cache, key, false, func(ctx context.Context) (*SearchResults, error) {
		raw, err := f.client.doRequest(ctx, request{
			method:   http.MethodPost,
			endpoint: e,
			encoding: encodeForm,
			form:     formValues("search", q),
		})
		if err != nil {
			return nil, err
		}
		res := f.client.normalize.Search(raw)
		return &res, nil
	})
}

// Invite sends a friend invitation to the user id, named name.
func (f *FriendsClient) Invite(ctx context.Context, id, name string) (*MutationAck, error) {
	return f.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointFriendsCreate,
		query:    url.Values{"id": {id}, "name": {name}},
	}, InvalidationsFor(MutationCreateFriend, id))
}

// AcceptInvite accepts the invitation from the user id.
func (f *FriendsClient) AcceptInvite(ctx context.Context, id string) (*MutationAck, error) {
	return f.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointFriendsAccept,
		encoding: encodeForm,
		form:     formValues("id", id),
	}, InvalidationsFor(MutationAcceptInvite, id))
}

// DeclineInvite ignores the invitation from the user id.
func (f *FriendsClient) DeclineInvite(ctx context.Context, id string) (*MutationAck, error) {
	return f.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointFriendsIgnore,
		encoding: encodeForm,
		form:     formValues("id", id),
	}, InvalidationsFor(MutationDeclineInvite, id))
}

// Remove removes a friend. It also cancels an invitation sent to id.
func (f *FriendsClient) Remove(ctx context.Context, id string) (*MutationAck, error) {
	return f.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointFriendsDelete,
		query:    url.Values{"id": {id}},
	}, InvalidationsFor(MutationRemoveFriend, id))
}
