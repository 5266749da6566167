package people

import (
	"strings"
	"sync"
)

// ============================================================================
// Confirmation dialogs
// ============================================================================

// ConfirmDialog is a closed/open dialog bound to one target while open.
type ConfirmDialog[T any] struct {
	open   bool
	target T
}

func (d *ConfirmDialog[T]) Open(target T) {
	d.open = true
	d.target = target
}

func (d *ConfirmDialog[T]) Close() {
	var zero T
	d.open = false
	d.target = zero
}

func (d *ConfirmDialog[T]) IsOpen() bool { return d.open }

// Target returns the target while the dialog is open.
func (d *ConfirmDialog[T]) Target() (T, bool) {
	return d.target, d.open
}

type (
	RemoveFriendDialog = ConfirmDialog[Friend]
	RemoveMemberDialog = ConfirmDialog[GroupMember]
)

// ============================================================================
// Member dialog
// ============================================================================

// MemberDialog picks a user or a group to add to a group. Each tab keeps its
// own selection; only the active tab's selection is submitted.
type MemberDialog struct {
	open      bool
	tab       MemberType
	selection map[MemberType]string
}

func (d *MemberDialog) Open() {
	d.open = true
	d.tab = MemberUser
	d.selection = map[MemberType]string{}
}

func (d *MemberDialog) Close() {
	d.open = false
	d.selection = nil
}

func (d *MemberDialog) IsOpen() bool { return d.open }

func (d *MemberDialog) Tab() MemberType { return d.tab }

func (d *MemberDialog) SetTab(tab MemberType) {
	if tab == MemberUser || tab == MemberGroup {
		d.tab = tab
	}
}

// Select selects id on the active tab.
func (d *MemberDialog) Select(id string) {
	if !d.open {
		return
	}
	d.selection[d.tab] = id
}

// CanAdd reports whether the active tab has a selection.
func (d *MemberDialog) CanAdd() bool {
	return d.open && d.selection[d.tab] != ""
}

// Request builds the add-member request for group.
func (d *MemberDialog) Request(group string) (AddMemberOptions, bool) {
	if !d.CanAdd() {
		return AddMemberOptions{}, false
	}
	return AddMemberOptions{Group: group, Member: d.selection[d.tab], Type: d.tab}, true
}

// ============================================================================
// Group dialog
// ============================================================================

// GroupDialogMode is the state of the create/edit group dialog.
type GroupDialogMode int

const (
	GroupDialogClosed GroupDialogMode = iota
	GroupDialogCreating
	GroupDialogEditing
)

// GroupDialog creates or edits a group. A failure carrying a permission
// switches it to asking for that permission.
type GroupDialog struct {
	mode       GroupDialogMode
	group      Group
	permission string
}

func (d *GroupDialog) OpenCreate() {
	*d = GroupDialog{mode: GroupDialogCreating}
}

func (d *GroupDialog) OpenEdit(g Group) {
	*d = GroupDialog{mode: GroupDialogEditing, group: g}
}

func (d *GroupDialog) Close() {
	*d = GroupDialog{}
}

func (d *GroupDialog) Mode() GroupDialogMode { return d.mode }

// Group returns the group being edited.
func (d *GroupDialog) Group() Group { return d.group }

// Fail records a submission error. It reports whether the error names a
// permission the user must grant.
func (d *GroupDialog) Fail(err error) bool {
	pe, ok := AsPermissionError(err)
	if !ok {
		return false
	}
	d.permission = pe.Permission
	return true
}

// PermissionNeeded returns the permission a failed submission asked for.
func (d *GroupDialog) PermissionNeeded() string { return d.permission }

// ============================================================================
// View derivations
// ============================================================================

// AvailableGroups returns the groups that can be added as members of
// groupID. A group is never offered as a member of itself.
func AvailableGroups(groups []Group, groupID string) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.ID != groupID {
			out = append(out, g)
		}
	}
	return out
}

// DefaultSuggestionLimit caps the suggested-friends grid.
const DefaultSuggestionLimit = 6

// SuggestedUsers drops existing friends and the caller, reports users invited
// during this session as invited, and keeps at most limit entries. A limit of
// zero or less uses DefaultSuggestionLimit.
func SuggestedUsers(results []Friend, invited map[string]bool, limit int) []Friend {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	out := make([]Friend, 0, limit)
	for _, u := range results {
		if u.RelationshipStatus == StatusFriend || u.RelationshipStatus == StatusSelf {
			continue
		}
		if len(out) == limit {
			break
		}
		if invited[u.ID] {
			u.RelationshipStatus = StatusInvited
		} else if u.RelationshipStatus == "" {
			u.RelationshipStatus = StatusNone
		}
		out = append(out, u)
	}
	return out
}

// SuggestionAction is what a suggestion's button does.
type SuggestionAction int

const (
	ActionDisabled SuggestionAction = iota
	ActionInvite
	ActionAccept
)

// ActionFor returns the action offered for a user with status s. A user who
// already invited the caller is accepted rather than invited back.
func ActionFor(s RelationshipStatus) SuggestionAction {
	switch s {
	case StatusPending:
		return ActionAccept
	case StatusNone, "":
		return ActionInvite
	}
	return ActionDisabled
}

// FilterFriendsByName keeps friends whose name contains q, ignoring case.
func FilterFriendsByName(friends []Friend, q string) []Friend {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return friends
	}
	var out []Friend
	for _, f := range friends {
		if strings.Contains(strings.ToLower(f.Name), q) {
			out = append(out, f)
		}
	}
	return out
}

// FilterInvitesByName keeps invites whose name contains q, ignoring case.
func FilterInvitesByName(invites []FriendInvite, q string) []FriendInvite {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return invites
	}
	var out []FriendInvite
	for _, inv := range invites {
		if strings.Contains(strings.ToLower(inv.Name), q) {
			out = append(out, inv)
		}
	}
	return out
}

// ============================================================================
// MutationGuard
// ============================================================================

// MutationGuard allows one in-flight submission per action key, the way a
// button stays disabled until its request settles.
type MutationGuard struct {
	mu   sync.Mutex
	busy map[string]bool
}

// Do runs fn unless key is already running, in which case it returns ErrBusy.
func (g *MutationGuard) Do(key string, fn func() error) error {
	g.mu.Lock()
	if g.busy == nil {
		g.busy = make(map[string]bool)
	}
	if g.busy[key] {
		g.mu.Unlock()
		return ErrBusy
	}
	g.busy[key] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.busy, key)
		g.mu.Unlock()
	}()
	return fn()
}

// Busy reports whether key is running.
func (g *MutationGuard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy[key]
}
