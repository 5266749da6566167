package people

import "net/url"

// Endpoint is a path template. Paths starting with "-/" are relative to the
// app path; the rest are absolute on the base URL.
type Endpoint string

const (
	EndpointFriendsList   Endpoint = "-/friends"
	EndpointFriendsSearch Endpoint = "-/friends/search"
	EndpointFriendsCreate Endpoint = "-/friends/create"
	EndpointFriendsAccept Endpoint = "-/friends/accept"
	EndpointFriendsIgnore Endpoint = "-/friends/ignore"
	EndpointFriendsDelete Endpoint = "-/friends/delete"

	EndpointWelcomeGet  Endpoint = "-/welcome"
	EndpointWelcomeSeen Endpoint = "-/welcome/seen"

	EndpointUsersSearch Endpoint = "-/users/search"

	EndpointGroupsList         Endpoint = "-/groups/list"
	EndpointGroupsGet          Endpoint = "-/groups/get"
	EndpointGroupsCreate       Endpoint = "-/groups/create"
	EndpointGroupsUpdate       Endpoint = "-/groups/update"
	EndpointGroupsDelete       Endpoint = "-/groups/delete"
	EndpointGroupsMemberAdd    Endpoint = "-/groups/members/add"
	EndpointGroupsMemberRemove Endpoint = "-/groups/members/remove"

	EndpointChatList   Endpoint = "/chat/list"
	EndpointChatNew    Endpoint = "/chat/new"
	EndpointChatCreate Endpoint = "/chat/create"

	EndpointNotificationsCheck Endpoint = "-/notifications/check"
)

// ChatMessages returns the message-history path of a chat.
func ChatMessages(chatID string) Endpoint {
	return Endpoint("/chat/" + url.PathEscape(chatID) + "/messages")
}

// ChatSend returns the send path of a chat.
func ChatSend(chatID string) Endpoint {
	return Endpoint("/chat/" + url.PathEscape(chatID) + "/send")
}

// ChatDetail returns the detail path of a chat.
func ChatDetail(chatID string) Endpoint {
	return Endpoint("/chat/" + url.PathEscape(chatID))
}

// Endpoints maps logical operation names to their paths.
var Endpoints = map[string]Endpoint{
	"friends.list":        EndpointFriendsList,
	"friends.search":      EndpointFriendsSearch,
	"friends.create":      EndpointFriendsCreate,
	"friends.accept":      EndpointFriendsAccept,
	"friends.ignore":      EndpointFriendsIgnore,
	"friends.delete":      EndpointFriendsDelete,
	"welcome.get":         EndpointWelcomeGet,
	"welcome.seen":        EndpointWelcomeSeen,
	"users.search":        EndpointUsersSearch,
	"groups.list":         EndpointGroupsList,
	"groups.get":          EndpointGroupsGet,
	"groups.create":       EndpointGroupsCreate,
	"groups.update":       EndpointGroupsUpdate,
	"groups.delete":       EndpointGroupsDelete,
	"groups.memberAdd":    EndpointGroupsMemberAdd,
	"groups.memberRemove": EndpointGroupsMemberRemove,
	"chat.list":           EndpointChatList,
	"chat.new":            EndpointChatNew,
	"chat.create":         EndpointChatCreate,
	"notifications.check": EndpointNotificationsCheck,
}
