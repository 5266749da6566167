package people

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

func loose(t *testing.T, s string) any {
	t.Helper()
	v := decodeLoose([]byte(s))
	require.NotNil(t, v, "invalid JSON fixture: %s", s)
	return v
}

func intPtr(n int) *int { return &n }

func emptyView() FriendsListView {
	return FriendsListView{Friends: []Friend{}, Received: []FriendInvite{}, Sent: []FriendInvite{}}
}

// ============================================================================
// FriendsList
// ============================================================================

func TestNormalizeFriendsList(t *testing.T) {
	t.Run("invites partitioned by direction", func(t *testing.T) {
		raw := loose(t, `{"friends":[{"id":"1","name":"Ann"}],"invites":[{"id":"2","name":"Bo","direction":"from"},{"id":"3","name":"Cy","direction":"to"}]}`)
		got := NormalizeFriendsList(raw)
		assert.Equal(t, FriendsListView{
			Friends:  []Friend{{ID: "1", Name: "Ann"}},
			Received: []FriendInvite{{ID: "2", Name: "Bo", Direction: DirectionFrom}},
			Sent:     []FriendInvite{{ID: "3", Name: "Cy", Direction: DirectionTo}},
		}, got)
	})

	t.Run("empty array", func(t *testing.T) {
		assert.Equal(t, emptyView(), NormalizeFriendsList(loose(t, `[]`)))
	})

	t.Run("array is friends only", func(t *testing.T) {
		raw := loose(t, `[{"id":"1","name":"Ann"},{"id":"2","name":"Bo","direction":"from"}]`)
		got := NormalizeFriendsList(raw)
		assert.Equal(t, []Friend{{ID: "1", Name: "Ann"}, {ID: "2", Name: "Bo"}}, got.Friends)
		assert.Empty(t, got.Received)
		assert.Empty(t, got.Sent)
	})

	t.Run("outer total wins over wrapped total", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `{"data":{"friends":[],"total":5},"total":10}`))
		require.NotNil(t, got.Total)
		assert.Equal(t, 10, *got.Total)
	})

	t.Run("inner counters used when outer has none", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `{"data":{"friends":[],"total":5,"page":2,"limit":20}}`))
		assert.Equal(t, intPtr(5), got.Total)
		assert.Equal(t, intPtr(2), got.Page)
		assert.Equal(t, intPtr(20), got.Limit)
	})

	t.Run("numeric strings are not counters", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `{"friends":[],"total":"7"}`))
		assert.Nil(t, got.Total)
	})

	t.Run("unknown directions dropped", func(t *testing.T) {
		raw := loose(t, `{"invites":[{"id":"a","direction":"from"},{"id":"b","direction":"sideways"},{"id":"c"},{"id":"d","direction":"to"}]}`)
		got := NormalizeFriendsList(raw)
		assert.Len(t, got.Received, 1)
		assert.Len(t, got.Sent, 1)
		assert.Equal(t, "a", got.Received[0].ID)
		assert.Equal(t, "d", got.Sent[0].ID)
	})

	t.Run("legacy received and sent", func(t *testing.T) {
		raw := loose(t, `{"friends":[],"received":[{"id":"r1","name":"Rae"}],"sent":[{"id":"s1","name":"Sam"}]}`)
		got := NormalizeFriendsList(raw)
		assert.Equal(t, []FriendInvite{{ID: "r1", Name: "Rae", Direction: DirectionFrom}}, got.Received)
		assert.Equal(t, []FriendInvite{{ID: "s1", Name: "Sam", Direction: DirectionTo}}, got.Sent)
	})

	t.Run("invites take precedence over legacy lists", func(t *testing.T) {
		raw := loose(t, `{"invites":[{"id":"x","direction":"to"}],"received":[{"id":"r1"}]}`)
		got := NormalizeFriendsList(raw)
		assert.Empty(t, got.Received)
		assert.Len(t, got.Sent, 1)
	})

	t.Run("object without invite fields", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `{"friends":[{"id":"1","name":"Ann"}]}`))
		assert.NotNil(t, got.Received)
		assert.NotNil(t, got.Sent)
		assert.Empty(t, got.Received)
		assert.Empty(t, got.Sent)
	})

	t.Run("numeric ids become strings", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `[{"id":42,"name":"Num"}]`))
		assert.Equal(t, "42", got.Friends[0].ID)
	})

	t.Run("non-object entries dropped", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `{"friends":[1,"two",null,{"id":"3","name":"Three"}]}`))
		assert.Equal(t, []Friend{{ID: "3", Name: "Three"}}, got.Friends)
	})

	t.Run("unknown relationship status dropped", func(t *testing.T) {
		got := NormalizeFriendsList(loose(t, `[{"id":"1","relationshipStatus":"enemy"},{"id":"2","relationshipStatus":"pending"}]`))
		assert.Equal(t, RelationshipStatus(""), got.Friends[0].RelationshipStatus)
		assert.Equal(t, StatusPending, got.Friends[1].RelationshipStatus)
	})

	t.Run("malformed input never panics", func(t *testing.T) {
		for _, raw := range []any{nil, "text", 3.5, true, json.Number("1"), []byte("not json"), json.RawMessage(`"str"`)} {
			assert.NotPanics(t, func() {
				assert.Equal(t, emptyView(), NormalizeFriendsList(raw))
			})
		}
	})

	t.Run("raw bytes accepted", func(t *testing.T) {
		got := NormalizeFriendsList([]byte(`{"friends":[{"id":"1","name":"Ann"}]}`))
		assert.Len(t, got.Friends, 1)
	})
}

func TestNormalizeFriendsListWrappedEqualsBare(t *testing.T) {
	bodies := []string{
		`{"friends":[{"id":"1","name":"Ann"}],"invites":[{"id":"2","name":"Bo","direction":"from"}]}`,
		`{"friends":[],"received":[{"id":"r"}],"sent":[{"id":"s"}],"total":3}`,
		`{"invites":[{"id":"2","direction":"to"},{"id":"9","direction":"up"}]}`,
		`[{"id":"1","name":"Ann"}]`,
		`{}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			bare := NormalizeFriendsList(loose(t, body))
			wrapped := NormalizeFriendsList(loose(t, `{"data":`+body+`}`))
			assert.Equal(t, bare, wrapped)
		})
	}
}

func TestNormalizeFriendsListTypedSlices(t *testing.T) {
	friends := []Friend{{ID: "1", Name: "Ann", RelationshipStatus: StatusFriend}}
	got := NormalizeFriendsList(friends)
	assert.Equal(t, friends, got.Friends)
	assert.Empty(t, got.Received)

	got = NormalizeFriendsList([]FriendInvite{{ID: "2", Name: "Bo", Direction: DirectionFrom}})
	assert.Equal(t, []Friend{{ID: "2", Name: "Bo"}}, got.Friends)
	assert.Empty(t, got.Received)
}

func TestNormalizeFriendsListCounters(t *testing.T) {
	tests := []struct {
		body string
		want *int
	}{
		{`{"total":10}`, intPtr(10)},
		{`{"total":10.5}`, intPtr(10)},
		{`{"total":-3.9}`, intPtr(-3)},
		{`{"total":"10"}`, nil},
		{`{"total":1e19}`, nil},
		{`{"total":1e400}`, nil},
		{`{"total":99999999999999999999}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeFriendsList(loose(t, tt.body)).Total)
		})
	}

	t.Run("non-finite", func(t *testing.T) {
		got := NormalizeFriendsList(map[string]any{"total": math.Inf(1), "page": math.NaN(), "limit": float64(50)})
		assert.Nil(t, got.Total)
		assert.Nil(t, got.Page)
		assert.Equal(t, intPtr(50), got.Limit)
	})
}

func TestNormalizeFriendsListIdempotent(t *testing.T) {
	bodies := []string{
		`{"friends":[{"id":"1","name":"Ann","relationshipStatus":"friend"}],"invites":[{"id":"2","name":"Bo","direction":"from"},{"id":"3","name":"Cy","direction":"to"}],"total":10,"page":1,"limit":50}`,
		`{"data":{"friends":[],"total":5},"total":10}`,
		`[]`,
		`"garbage"`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			once := NormalizeFriendsList(loose(t, body))
			assert.Equal(t, once, NormalizeFriendsList(once))
			assert.Equal(t, once, NormalizeFriendsList(&once))
		})
	}
}

func TestNormalizerDevelopmentWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	(&Normalizer{Logger: logger}).FriendsList("unexpected")
	assert.Empty(t, buf.String())

	(&Normalizer{Logger: logger, Development: true}).FriendsList("unexpected")
	assert.True(t, strings.Contains(buf.String(), "friends response shape unexpected"))
}

// ============================================================================
// Other resources
// ============================================================================

func TestUnwrap(t *testing.T) {
	t.Run("unwraps once", func(t *testing.T) {
		got := Unwrap(loose(t, `{"data":{"data":{"x":1}}}`))
		m, ok := got.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, m, "data")
	})

	t.Run("no envelope", func(t *testing.T) {
		raw := loose(t, `{"id":"c1"}`)
		assert.Equal(t, raw, Unwrap(raw))
	})
}

func TestNormalizeSearch(t *testing.T) {
	n := &Normalizer{}
	for name, body := range map[string]string{
		"results":         `{"results":[{"id":"u1","name":"Uma","relationshipStatus":"none"}]}`,
		"wrapped results": `{"data":{"results":[{"id":"u1","name":"Uma","relationshipStatus":"none"}]}}`,
		"bare array":      `[{"id":"u1","name":"Uma","relationshipStatus":"none"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			got := n.Search(loose(t, body))
			assert.Equal(t, []Friend{{ID: "u1", Name: "Uma", RelationshipStatus: StatusNone}}, got.Results)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		assert.Equal(t, SearchResults{Results: []Friend{}}, n.Search(nil))
	})
}

func TestNormalizeGroups(t *testing.T) {
	n := &Normalizer{}

	t.Run("list", func(t *testing.T) {
		got := n.Groups(loose(t, `{"data":{"groups":[{"id":"g1","name":"Family","description":"close"},{"id":"g2","name":"Work"}]}}`))
		assert.Equal(t, []Group{{ID: "g1", Name: "Family", Description: "close"}, {ID: "g2", Name: "Work"}}, got)
	})

	t.Run("missing groups", func(t *testing.T) {
		got := n.Groups(loose(t, `{}`))
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("detail", func(t *testing.T) {
		got, err := n.GroupDetail(loose(t, `{"group":{"id":"g1","name":"Family"},"members":[{"member":"u1","name":"Ann","type":"user"},{"member":"g2","name":"Work","type":"group"},{"member":"u2","name":"Bo"}]}`))
		require.NoError(t, err)
		assert.Equal(t, Group{ID: "g1", Name: "Family"}, got.Group)
		assert.Equal(t, []GroupMember{
			{Member: "u1", Name: "Ann", Type: MemberUser},
			{Member: "g2", Name: "Work", Type: MemberGroup},
			{Member: "u2", Name: "Bo", Type: MemberUser},
		}, got.Members)
	})

	t.Run("detail without group", func(t *testing.T) {
		_, err := n.GroupDetail(loose(t, `{"members":[]}`))
		assert.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("detail without members", func(t *testing.T) {
		got, err := n.GroupDetail(loose(t, `{"data":{"group":{"id":"g1","name":"Family"}}}`))
		require.NoError(t, err)
		assert.NotNil(t, got.Members)
		assert.Empty(t, got.Members)
	})
}

func TestNormalizeCreatedChat(t *testing.T) {
	n := &Normalizer{}
	got := n.CreatedChat(loose(t, `{"data":{"id":"c1","fingerprint":"abc","members":[{"id":"u1","name":"Ann"}],"name":"Lunch","key":"k1"}}`))
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "abc", got.Fingerprint)
	assert.Equal(t, "Lunch", got.Name)
	assert.Equal(t, []ChatMember{{ID: "u1", Name: "Ann"}}, got.Members)
	assert.Equal(t, map[string]any{"key": "k1"}, got.Extra)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","fingerprint":"abc","members":[{"id":"u1","name":"Ann"}],"name":"Lunch","key":"k1"}`, string(b))
}

func TestNormalizeNewChat(t *testing.T) {
	n := &Normalizer{}
	got := n.NewChat(loose(t, `{"data":{"friends":[{"class":"person","id":"u1","identity":"u1","name":"Ann","chatId":"c9"}],"name":"Me"}}`))
	assert.Equal(t, "Me", got.Name)
	assert.Equal(t, []NewChatFriend{{Class: "person", ID: "u1", Identity: "u1", Name: "Ann", ChatID: "c9"}}, got.Friends)
}

func TestNormalizeWelcomeAndCheck(t *testing.T) {
	n := &Normalizer{}
	assert.Equal(t, Welcome{Seen: true, Count: 3}, n.Welcome(loose(t, `{"data":{"seen":true,"count":3}}`)))
	assert.Equal(t, Welcome{}, n.Welcome(nil))
	assert.Equal(t, NotificationCheck{Exists: true}, n.NotificationCheck(loose(t, `{"exists":true}`)))
	assert.Equal(t, NotificationCheck{}, n.NotificationCheck(loose(t, `[]`)))
}

func TestNormalizeMutation(t *testing.T) {
	for _, raw := range []any{nil, map[string]any{}, "ok", map[string]any{"success": false}} {
		assert.Equal(t, &MutationAck{Success: true}, NormalizeMutation(raw))
	}
}
