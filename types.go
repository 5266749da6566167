package people

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrGroupNotFound is returned when a group detail payload carries no group.
	ErrGroupNotFound = errors.New("group not found")
	// ErrNameRequired is returned before any request when a group name is blank.
	ErrNameRequired = errors.New("name is required")
	// ErrMissingName is returned before any request when a chat would be
	// created for a friend without a name.
	ErrMissingName = errors.New("friend name is missing")
	// ErrNoParticipants is returned when a chat is created without members.
	ErrNoParticipants = errors.New("at least one participant is required")
	// ErrBusy is returned by MutationGuard while the same action is in flight.
	ErrBusy = errors.New("action already in progress")
)

// APIError represents an error body carrying a code and message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// AsAPIError reports whether err is a transport failure whose body (bare or
// wrapped under "data") carries an error code. The message falls back to the
// "error" field.
func AsAPIError(err error) (*APIError, bool) {
	var te *TransportError
	if !errors.As(err, &te) || len(te.Body) == 0 {
		return nil, false
	}
	raw := decodeLoose(te.Body)
	for _, candidate := range []any{raw, Unwrap(raw)} {
		m, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		if code := strOr(m, "code", ""); code != "" {
			return &APIError{Code: code, Message: strOr(m, "message", strOr(m, "error", ""))}, true
		}
	}
	return nil, false
}

// TransportError is any HTTP-level failure: a non-2xx status, a timeout or a
// connection failure. It is surfaced unchanged to the caller.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message extracts a human-readable message from the error body, if any.
func (e *TransportError) Message() string {
	m, ok := Unwrap(decodeLoose(e.Body)).(map[string]any)
	if !ok {
		return strings.TrimSpace(string(e.Body))
	}
	for _, k := range []string{"error", "message"} {
		if s := strOr(m, k, ""); s != "" {
			return s
		}
	}
	return ""
}

// PermissionError is an error body carrying a "permission" field. Callers
// route it to a permission request instead of a generic failure message.
type PermissionError struct {
	Permission string
	Cause      *TransportError
}

func (e *PermissionError) Error() string {
	return "permission required: " + e.Permission
}

func (e *PermissionError) Unwrap() error { return e.Cause }

// AsPermissionError reports whether err is a transport failure whose body
// (bare or wrapped under "data") names a required permission.
func AsPermissionError(err error) (*PermissionError, bool) {
	var te *TransportError
	if !errors.As(err, &te) || len(te.Body) == 0 {
		return nil, false
	}
	raw := decodeLoose(te.Body)
	for _, candidate := range []any{raw, Unwrap(raw)} {
		m, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		if p := strOr(m, "permission", ""); p != "" {
			return &PermissionError{Permission: p, Cause: te}, true
		}
	}
	return nil, false
}

// ErrorMessage returns err's user-facing message, or fallback when err has none.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var te *TransportError
	if errors.As(err, &te) && te.Err == nil {
		if msg := te.Message(); msg != "" {
			return msg
		}
		return fallback
	}
	return err.Error()
}

// ============================================================================
// Friends
// ============================================================================

// RelationshipStatus is the caller's relationship to another user.
type RelationshipStatus string

const (
	StatusNone    RelationshipStatus = "none"
	StatusPending RelationshipStatus = "pending"
	StatusInvited RelationshipStatus = "invited"
	StatusFriend  RelationshipStatus = "friend"
	StatusSelf    RelationshipStatus = "self"
)

func (s RelationshipStatus) valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusInvited, StatusFriend, StatusSelf:
		return true
	}
	return false
}

type Friend struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	RelationshipStatus RelationshipStatus `json:"relationshipStatus,omitempty"`
}

// InviteDirection tells whether an invite was received ("from") or sent ("to").
type InviteDirection string

const (
	DirectionFrom InviteDirection = "from"
	DirectionTo   InviteDirection = "to"
)

type FriendInvite struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Direction InviteDirection `json:"direction,omitempty"`
}

// FriendsListView is the canonical friends-list shape consumed by every
// friend-related view, whatever shape the backend returned.
type FriendsListView struct {
	Friends  []Friend       `json:"friends"`
	Received []FriendInvite `json:"received"`
	Sent     []FriendInvite `json:"sent"`
	Total    *int           `json:"total,omitempty"`
	Page     *int           `json:"page,omitempty"`
	Limit    *int           `json:"limit,omitempty"`
}

// SearchResults is the normalized result of a user search.
type SearchResults struct {
	Results []Friend `json:"results"`
}

// Welcome is the first-run welcome state.
type Welcome struct {
	Seen  bool `json:"seen"`
	Count int  `json:"count"`
}

// MutationAck is synthesized for every successful mutation.
type MutationAck struct {
	Success bool `json:"success"`
}

// ============================================================================
// Groups
// ============================================================================

type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// MemberType tells whether a group member is a user or a nested group.
type MemberType string

const (
	MemberUser  MemberType = "user"
	MemberGroup MemberType = "group"
)

type GroupMember struct {
	Member string     `json:"member"`
	Name   string     `json:"name"`
	Type   MemberType `json:"type"`
}

type GroupDetail struct {
	Group   Group         `json:"group"`
	Members []GroupMember `json:"members"`
}

type CreateGroupOptions struct {
	ID          string
	Name        string
	Description string
}

// UpdateGroupOptions updates a group. A nil Description leaves it unchanged;
// a pointer to "" clears it.
type UpdateGroupOptions struct {
	ID          string
	Name        string
	Description *string
}

type AddMemberOptions struct {
	Group  string
	Member string
	Type   MemberType
}

type RemoveMemberOptions struct {
	Group  string
	Member string
}

// ============================================================================
// Chat
// ============================================================================

type ChatMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreatedChat is the chat returned by chat creation. Fields the SDK does not
// model are kept in Extra.
type CreatedChat struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Members     []ChatMember   `json:"members"`
	Name        string         `json:"name"`
	Extra       map[string]any `json:"-"`
}

// MarshalJSON flattens Extra back next to the modeled fields.
func (c CreatedChat) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["id"] = c.ID
	out["name"] = c.Name
	out["members"] = c.Members
	if c.Fingerprint != "" {
		out["fingerprint"] = c.Fingerprint
	}
	return json.Marshal(out)
}

type NewChatFriend struct {
	Class           string `json:"class"`
	ID              string `json:"id"`
	Identity        string `json:"identity"`
	Name            string `json:"name"`
	ChatID          string `json:"chatId,omitempty"`
	ChatFingerprint string `json:"chatFingerprint,omitempty"`
}

// NewChat lists the friends a new chat can be started with.
type NewChat struct {
	Friends []NewChatFriend `json:"friends"`
	Name    string          `json:"name"`
}

type ChatSummary struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Updated  int64  `json:"updated"`
}

// NotificationCheck reports whether a notification subscription exists.
type NotificationCheck struct {
	Exists bool `json:"exists"`
}
