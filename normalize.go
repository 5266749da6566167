package people

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
)

// ============================================================================
// Shape dispatch
// ============================================================================

// shapeKind is the closed set of payload shapes a normalizer dispatches on.
type shapeKind int

const (
	shapeUnrecognized shapeKind = iota
	shapeArray
	shapeWrapped
	shapeObject
)

// shape is a classified payload. For shapeWrapped, outer is the envelope and
// inner the object under "data"; for shapeObject both are the same map.
type shape struct {
	kind  shapeKind
	list  []any
	outer map[string]any
	inner map[string]any
}

func classify(raw any) shape {
	raw = coerce(raw)
	switch v := raw.(type) {
	case []any:
		return shape{kind: shapeArray, list: v}
	case map[string]any:
		switch data := coerce(v["data"]).(type) {
		case map[string]any:
			return shape{kind: shapeWrapped, outer: v, inner: data}
		case []any:
			return shape{kind: shapeWrapped, outer: v, list: data}
		}
		return shape{kind: shapeObject, outer: v, inner: v}
	}
	return shape{kind: shapeUnrecognized}
}

// coerce turns typed inputs (raw JSON, typed slices and maps) into the generic
// JSON values the normalizers dispatch on. Anything else is returned as is.
func coerce(raw any) any {
	switch v := raw.(type) {
	case nil, []any, map[string]any:
		return v
	case json.RawMessage:
		return decodeLoose(v)
	case []byte:
		return decodeLoose(v)
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	case []Friend, []FriendInvite:
		return toLoose(v)
	case FriendsListView:
		return toLoose(&v)
	case *FriendsListView:
		if v == nil {
			return nil
		}
		return toLoose(v)
	}
	return raw
}

// toLoose round-trips a typed model value through JSON.
func toLoose(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return decodeLoose(b)
}

// Unwrap removes one level of "data" envelope: an object holding a "data" key
// yields that value, anything else is returned unchanged. It never recurses, so
// domain payloads with their own "data" field survive.
func Unwrap(raw any) any {
	raw = coerce(raw)
	if m, ok := raw.(map[string]any); ok {
		if d, has := m["data"]; has {
			return d
		}
	}
	return raw
}

// ============================================================================
// Normalizer
// ============================================================================

// Normalizer maps loosely-shaped backend payloads to the canonical client
// model. It never fails on shape: unexpected input becomes empty output.
type Normalizer struct {
	Logger      *slog.Logger
	Development bool
}

var defaultNormalizer = &Normalizer{}

func (n *Normalizer) warn(msg string, payload any) {
	if !n.Development || n.Logger == nil {
		return
	}
	n.Logger.Warn(msg, "payload", payload)
}

// NormalizeFriendsList normalizes a friends-list payload with a silent
// normalizer.
func NormalizeFriendsList(raw any) FriendsListView {
	return defaultNormalizer.FriendsList(raw)
}

// FriendsList normalizes any friends-list payload:
//
//   - a bare array is the complete friends list, never invites;
//   - an object, optionally wrapped under "data", supplies friends and either
//     an "invites" array partitioned by direction or legacy received/sent;
//   - total, page and limit prefer the outer object over the wrapped one;
//   - anything else yields an empty view.
func (n *Normalizer) FriendsList(raw any) FriendsListView {
	s := classify(raw)
	view := FriendsListView{
		Friends:  []Friend{},
		Received: []FriendInvite{},
		Sent:     []FriendInvite{},
	}

	switch s.kind {
	case shapeArray:
		view.Friends = toFriends(s.list)
		return view
	case shapeUnrecognized:
		n.warn("friends response shape unexpected", raw)
		return view
	}

	if s.inner == nil {
		// {"data": [...]} reads like a bare array wrapped once.
		view.Friends = toFriends(s.list)
	} else {
		view.Friends = toFriends(listOf(s.inner, "friends"))
		if invites, ok := coerce(s.inner["invites"]).([]any); ok {
			for _, item := range invites {
				inv, ok := toInvite(item)
				if !ok {
					continue
				}
				switch inv.Direction {
				case DirectionFrom:
					view.Received = append(view.Received, inv)
				case DirectionTo:
					view.Sent = append(view.Sent, inv)
				}
			}
		} else {
			view.Received = toInvites(listOf(s.inner, "received"), DirectionFrom)
			view.Sent = toInvites(listOf(s.inner, "sent"), DirectionTo)
		}
	}

	view.Total = firstNumber("total", s.outer, s.inner)
	view.Page = firstNumber("page", s.outer, s.inner)
	view.Limit = firstNumber("limit", s.outer, s.inner)
	return view
}

// Search normalizes a user-search payload: {results: [...]}, a bare array, or
// either of those wrapped under "data".
func (n *Normalizer) Search(raw any) SearchResults {
	out := SearchResults{Results: []Friend{}}
	switch v := coerce(Unwrap(raw)).(type) {
	case []any:
		out.Results = toFriends(v)
	case map[string]any:
		out.Results = toFriends(listOf(v, "results"))
	default:
		n.warn("search response shape unexpected", raw)
	}
	return out
}

// Welcome normalizes the welcome-state payload.
func (n *Normalizer) Welcome(raw any) Welcome {
	m, ok := coerce(Unwrap(raw)).(map[string]any)
	if !ok {
		n.warn("welcome response shape unexpected", raw)
		return Welcome{}
	}
	return Welcome{Seen: boolOr(m, "seen", false), Count: intOr(m, "count", 0)}
}

// Groups normalizes a groups-list payload: {groups: [...]}, a bare array, or
// either wrapped under "data".
func (n *Normalizer) Groups(raw any) []Group {
	var items []any
	switch v := coerce(Unwrap(raw)).(type) {
	case []any:
		items = v
	case map[string]any:
		items = listOf(v, "groups")
	default:
		n.warn("groups response shape unexpected", raw)
	}
	groups := make([]Group, 0, len(items))
	for _, item := range items {
		if g, ok := toGroup(item); ok {
			groups = append(groups, g)
		}
	}
	return groups
}

// GroupDetail normalizes a group-detail payload. A payload without a group
// object is ErrGroupNotFound; missing members are an empty list.
func (n *Normalizer) GroupDetail(raw any) (*GroupDetail, error) {
	m, ok := coerce(Unwrap(raw)).(map[string]any)
	if !ok {
		n.warn("group response shape unexpected", raw)
		return nil, ErrGroupNotFound
	}
	g, ok := toGroup(m["group"])
	if !ok {
		return nil, ErrGroupNotFound
	}
	detail := &GroupDetail{Group: g, Members: []GroupMember{}}
	for _, item := range listOf(m, "members") {
		if mem, ok := toMember(item); ok {
			detail.Members = append(detail.Members, mem)
		}
	}
	return detail, nil
}

// CreatedChat normalizes a chat-creation payload.
func (n *Normalizer) CreatedChat(raw any) CreatedChat {
	chat := CreatedChat{Members: []ChatMember{}}
	m, ok := coerce(Unwrap(raw)).(map[string]any)
	if !ok {
		n.warn("create chat response shape unexpected", raw)
		return chat
	}
	chat.ID = idOf(m, "id")
	chat.Name = strOr(m, "name", "")
	chat.Fingerprint = strOr(m, "fingerprint", "")
	for _, item := range listOf(m, "members") {
		if rec, ok := item.(map[string]any); ok {
			chat.Members = append(chat.Members, ChatMember{ID: idOf(rec, "id"), Name: strOr(rec, "name", "")})
		}
	}
	for k, v := range m {
		switch k {
		case "id", "name", "fingerprint", "members":
			continue
		}
		if chat.Extra == nil {
			chat.Extra = make(map[string]any)
		}
		chat.Extra[k] = v
	}
	return chat
}

// NewChat normalizes the "friends available for a new chat" payload.
func (n *Normalizer) NewChat(raw any) NewChat {
	out := NewChat{Friends: []NewChatFriend{}}
	m, ok := coerce(Unwrap(raw)).(map[string]any)
	if !ok {
		n.warn("new chat response shape unexpected", raw)
		return out
	}
	out.Name = strOr(m, "name", "")
	for _, item := range listOf(m, "friends") {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out.Friends = append(out.Friends, NewChatFriend{
			Class:           strOr(rec, "class", ""),
			ID:              idOf(rec, "id"),
			Identity:        strOr(rec, "identity", ""),
			Name:            strOr(rec, "name", ""),
			ChatID:          idOf(rec, "chatId"),
			ChatFingerprint: strOr(rec, "chatFingerprint", ""),
		})
	}
	return out
}

// Chats normalizes a chat-list payload: {chats: [...]} or a bare array.
func (n *Normalizer) Chats(raw any) []ChatSummary {
	var items []any
	switch v := coerce(Unwrap(raw)).(type) {
	case []any:
		items = v
	case map[string]any:
		items = listOf(v, "chats")
	}
	chats := make([]ChatSummary, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		chats = append(chats, ChatSummary{
			ID:       idOf(rec, "id"),
			Identity: strOr(rec, "identity", ""),
			Key:      strOr(rec, "key", ""),
			Name:     strOr(rec, "name", ""),
			Updated:  int64(intOr(rec, "updated", 0)),
		})
	}
	return chats
}

// NotificationCheck normalizes the subscription-check payload.
func (n *Normalizer) NotificationCheck(raw any) NotificationCheck {
	m, _ := coerce(Unwrap(raw)).(map[string]any)
	return NotificationCheck{Exists: boolOr(m, "exists", false)}
}

// NormalizeMutation maps any successful mutation response to an ack. Failures
// never reach here: they are transport errors.
func NormalizeMutation(any) *MutationAck {
	return &MutationAck{Success: true}
}

// ============================================================================
// Element conversion
// ============================================================================

func toFriends(items []any) []Friend {
	out := make([]Friend, 0, len(items))
	for _, item := range items {
		rec, ok := coerce(item).(map[string]any)
		if !ok {
			continue
		}
		f := Friend{ID: idOf(rec, "id"), Name: strOr(rec, "name", "")}
		if s := RelationshipStatus(strOr(rec, "relationshipStatus", "")); s.valid() {
			f.RelationshipStatus = s
		}
		out = append(out, f)
	}
	return out
}

func toInvite(item any) (FriendInvite, bool) {
	rec, ok := coerce(item).(map[string]any)
	if !ok {
		return FriendInvite{}, false
	}
	return FriendInvite{
		ID:        idOf(rec, "id"),
		Name:      strOr(rec, "name", ""),
		Direction: InviteDirection(strOr(rec, "direction", "")),
	}, true
}

// toInvites reads a legacy received/sent list; membership decides direction.
func toInvites(items []any, dir InviteDirection) []FriendInvite {
	out := make([]FriendInvite, 0, len(items))
	for _, item := range items {
		inv, ok := toInvite(item)
		if !ok {
			continue
		}
		inv.Direction = dir
		out = append(out, inv)
	}
	return out
}

func toGroup(item any) (Group, bool) {
	rec, ok := coerce(item).(map[string]any)
	if !ok {
		return Group{}, false
	}
	return Group{
		ID:          idOf(rec, "id"),
		Name:        strOr(rec, "name", ""),
		Description: strOr(rec, "description", ""),
	}, true
}

func toMember(item any) (GroupMember, bool) {
	rec, ok := coerce(item).(map[string]any)
	if !ok {
		return GroupMember{}, false
	}
	t := MemberType(strOr(rec, "type", string(MemberUser)))
	if t != MemberGroup {
		t = MemberUser
	}
	return GroupMember{Member: idOf(rec, "member"), Name: strOr(rec, "name", ""), Type: t}, true
}

// ============================================================================
// Loose-map helpers
// ============================================================================

func listOf(m map[string]any, key string) []any {
	if v, ok := coerce(m[key]).([]any); ok {
		return v
	}
	return nil
}

func strOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// idOf reads an identifier that the backend may send as a string or a number.
func idOf(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func intOr(m map[string]any, key string, fallback int) int {
	if n, ok := number(m[key]); ok {
		return n
	}
	return fallback
}

func boolOr(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

// firstNumber returns the first map (in order) holding key as a number.
func firstNumber(key string, maps ...map[string]any) *int {
	for _, m := range maps {
		if m == nil {
			continue
		}
		if n, ok := number(m[key]); ok {
			return &n
		}
	}
	return nil
}

// number accepts JSON numbers only; numeric strings are not numbers.
// Fractions truncate toward zero. NaN, infinities and values outside the int
// range are not numbers.
func number(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return intFrom64(i)
		}
		if f, err := n.Float64(); err == nil {
			return intFromFloat(f)
		}
	case float64:
		return intFromFloat(n)
	case int:
		return n, true
	case int64:
		return intFrom64(n)
	}
	return 0, false
}

func intFrom64(i int64) (int, bool) {
	if i < math.MinInt || i > math.MaxInt {
		return 0, false
	}
	return int(i), true
}

func intFromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || f < float64(math.MinInt) || f >= float64(math.MaxInt) {
		return 0, false
	}
	return int(f), true
}
