package people

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GroupsClient handles group management and membership.
type GroupsClient struct{ client *Client }

// List returns every group the caller owns.
func (g *GroupsClient) List(ctx context.Context) ([]Group, error) {
	return query(ctx, g.client.cache, GroupsKey(), false, g.fetchList)
}

// ListFresh is List, but a stale entry is refetched before returning.
func (g *GroupsClient) ListFresh(ctx context.Context) ([]Group, error) {
	return query(ctx, g.client.cache, GroupsKey(), true, g.fetchList)
}

func (g *GroupsClient) fetchList(ctx context.Context) ([]Group, error) {
	raw, err := g.client.doRequest(ctx, request{method: http.MethodGet, endpoint: EndpointGroupsList})
	if err != nil {
		return nil, err
	}
	return g.client.normalize.Groups(raw), nil
}

// Get returns a group and its members.
func (g *GroupsClient) Get(ctx context.Context, id string) (*GroupDetail, error) {
	return query(ctx, g.client.cache, GroupKey(id), false, g.fetchDetail(id))
}

// GetFresh is Get, but a stale entry is refetched before returning.
func (g *GroupsClient) GetFresh(ctx context.Context, id string) (*GroupDetail, error) {
	return query(ctx, g.client.cache, GroupKey(id), true, g.fetchDetail(id))
}

func (g *GroupsClient) fetchDetail(id string) func(context.Context) (*GroupDetail, error) {
	return func(ctx context.Context) (*GroupDetail, error) {
		raw, err := g.client.doRequest(ctx, request{
			method:   http.MethodPost,
			endpoint: EndpointGroupsGet,
			encoding: encodeForm,
			form:     formValues("id", id),
		})
		if err != nil {
			return nil, err
		}
		return g.client.normalize.GroupDetail(raw)
	}
}

// Create creates a group. The name is required; ID and Description are sent
// only when set.
func (g *GroupsClient) Create(ctx context.Context, opts CreateGroupOptions) (*MutationAck, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	form := url.Values{}
	if opts.ID != "" {
		form.Set("id", opts.ID)
	}
	form.Set("name", name)
	if d := strings.TrimSpace(opts.Description); d != "" {
		form.Set("description", d)
	}
	return g.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointGroupsCreate,
		encoding: encodeForm,
		form:     form,
	}, InvalidationsFor(MutationCreateGroup, opts.ID))
}

// Update changes a group's name and/or description.
func (g *GroupsClient) Update(ctx context.Context, opts UpdateGroupOptions) (*MutationAck, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("update group: id is required")
	}
	form := url.Values{}
	form.Set("id", opts.ID)
	if name := strings.TrimSpace(opts.Name); name != "" {
		form.Set("name", name)
	}
	if opts.Description != nil {
		form.Set("description", strings.TrimSpace(*opts.Description))
	}
	return g.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointGroupsUpdate,
		encoding: encodeForm,
		form:     form,
	}, InvalidationsFor(MutationUpdateGroup, opts.ID))
}

// Delete deletes a group.
func (g *GroupsClient) Delete(ctx context.Context, id string) (*MutationAck, error) {
	return g.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointGroupsDelete,
		encoding: encodeForm,
		form:     formValues("id", id),
	}, InvalidationsFor(MutationDeleteGroup, id))
}

// AddMember adds a user or a group as a member of a group.
func (g *GroupsClient) AddMember(ctx context.Context, opts AddMemberOptions) (*MutationAck, error) {
	if opts.Type != MemberUser && opts.Type != MemberGroup {
		return nil, fmt.Errorf("add member: unknown member type %q", opts.Type)
	}
	return g.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointGroupsMemberAdd,
		encoding: encodeForm,
		form:     formValues("group", opts.Group, "member", opts.Member, "type", string(opts.Type)),
	}, InvalidationsFor(MutationAddMember, opts.Group))
}

// RemoveMember removes a member from a group.
func (g *GroupsClient) RemoveMember(ctx context.Context, opts RemoveMemberOptions) (*MutationAck, error) {
	return g.client.mutate(ctx, request{
		method:   http.MethodPost,
		endpoint: EndpointGroupsMemberRemove,
		encoding: encodeForm,
		form:     formValues("group", opts.Group, "member", opts.Member),
	}, InvalidationsFor(MutationRemoveMember, opts.Group))
}
