// Package testserver is an in-memory People backend for tests. It serves every
// endpoint the SDK calls with the backend's wire encodings and records each
// request so tests can assert on method, encoding and fields.
package testserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request is one recorded request.
type Request struct {
	Method      string
	Path        string
	ContentType string
	Query       url.Values
	Form        url.Values
	JSON        map[string]any
	Body        []byte
}

type User struct {
	ID     string
	Name   string
	Status string
}

type Invite struct {
	ID        string
	Name      string
	Direction string
}

type Group struct {
	ID          string
	Name        string
	Description string
}

type Member struct {
	Member string
	Name   string
	Type   string
}

type failure struct {
	status int
	body   any
}

// Server is the fake backend. It embeds the running httptest.Server.
type Server struct {
	*httptest.Server

	appPath string

	mu          sync.Mutex
	requests    []Request
	wrapped     bool
	legacy      bool
	failures    map[string]failure
	delays      map[string]time.Duration
	friends     []User
	invites     []Invite
	directory   []User
	welcomeSeen bool
	groups      []Group
	members     map[string][]Member
	chats       []map[string]any
	subscribed  bool
}

type Option func(*Server)

// WithAppPath mounts the app-relative endpoints under path. Default "/people".
func WithAppPath(path string) Option {
	return func(s *Server) { s.appPath = "/" + strings.Trim(path, "/") }
}

// WithWrapped wraps every response body under "data".
func WithWrapped() Option {
	return func(s *Server) { s.wrapped = true }
}

// WithLegacyInvites serves invites as separate received/sent arrays.
func WithLegacyInvites() Option {
	return func(s *Server) { s.legacy = true }
}

// New starts a server. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		appPath:  "/people",
		failures: make(map[string]failure),
		delays:   make(map[string]time.Duration),
		members:  make(map[string][]Member),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.record, s.inject)

	app := r.Group(s.appPath + "/-")
	{
		app.GET("/friends", s.listFriends)
		app.POST("/friends/search", s.searchUsers)
		app.POST("/friends/create", s.createFriend)
		app.POST("/friends/accept", s.acceptInvite)
		app.POST("/friends/ignore", s.ignoreInvite)
		app.POST("/friends/delete", s.deleteFriend)
		app.POST("/users/search", s.searchUsers)
		app.GET("/welcome", s.getWelcome)
		app.POST("/welcome/seen", s.markWelcomeSeen)
		app.GET("/groups/list", s.listGroups)
		app.POST("/groups/get", s.getGroup)
		app.POST("/groups/create", s.createGroup)
		app.POST("/groups/update", s.updateGroup)
		app.POST("/groups/delete", s.deleteGroup)
		app.POST("/groups/members/add", s.addMember)
		app.POST("/groups/members/remove", s.removeMember)
		app.GET("/notifications/check", s.checkNotifications)
	}

	r.GET("/chat/new", s.newChat)
	r.POST("/chat/create", s.createChat)
	r.GET("/chat/list", s.listChats)
	return r
}

// ============================================================================
// Test controls
// ============================================================================

// Fail makes every request to path answer status with body until cleared.
func (s *Server) Fail(path string, status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[s.fullPath(path)] = failure{status: status, body: body}
}

// RequirePermission makes path answer 403 with a body naming permission.
func (s *Server) RequirePermission(path, permission string) {
	s.Fail(path, http.StatusForbidden, gin.H{"error": "permission required", "permission": permission})
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// DelaySearch delays the search response for query q.
func (s *Server) DelaySearch(q string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[q] = d
}

// SetWrapped switches "data" wrapping of responses on or off.
func (s *Server) SetWrapped(wrapped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapped = wrapped
}

func (s *Server) SetSubscribed(subscribed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = subscribed
}

func (s *Server) AddFriend(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = append(s.friends, User{ID: id, Name: name})
}

// AddInvite records an invite; direction is "from" (received) or "to" (sent).
func (s *Server) AddInvite(id, name, direction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites = append(s.invites, Invite{ID: id, Name: name, Direction: direction})
}

// AddUser adds a searchable user with a relationship status ("" for none).
func (s *Server) AddUser(id, name, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory = append(s.directory, User{ID: id, Name: name, Status: status})
}

func (s *Server) AddGroup(id, name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, Group{ID: id, Name: name, Description: description})
}

func (s *Server) AddMember(group, member, name, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[group] = append(s.members[group], Member{Member: member, Name: name, Type: typ})
}

func (s *Server) Friends() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]User(nil), s.friends...)
}

func (s *Server) Invites() []Invite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invite(nil), s.invites...)
}

func (s *Server) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Group(nil), s.groups...)
}

func (s *Server) Members(group string) []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Member(nil), s.members[group]...)
}

func (s *Server) WelcomeSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcomeSeen
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit path. App-relative paths may be given
// as "-/...".
func (s *Server) Count(path string) int {
	full := s.fullPath(path)
	n := 0
	for _, r := range s.Requests() {
		if r.Path == full {
			n++
		}
	}
	return n
}

// Last returns the most recent request to path.
func (s *Server) Last(path string) (Request, bool) {
	full := s.fullPath(path)
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Path == full {
			return reqs[i], true
		}
	}
	return Request{}, false
}

// ResetRequests forgets recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) fullPath(path string) string {
	if strings.HasPrefix(path, "-/") {
		return s.appPath + "/" + path
	}
	return path
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) record(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	rec := Request{
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		ContentType: c.ContentType(),
		Query:       c.Request.URL.Query(),
		Body:        body,
	}
	switch rec.ContentType {
	case "application/x-www-form-urlencoded":
		rec.Form, _ = url.ParseQuery(string(body))
	case "application/json":
		_ = json.Unmarshal(body, &rec.JSON)
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()
	c.Next()
}

func (s *Server) inject(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.failures[c.Request.URL.Path]
	s.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(f.status, f.body)
		return
	}
	c.Next()
}

func (s *Server) respond(c *gin.Context, body any) {
	s.mu.Lock()
	wrapped := s.wrapped
	s.mu.Unlock()
	if wrapped {
		body = gin.H{"data": body}
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// ============================================================================
// Friends
// ============================================================================

func (s *Server) listFriends(c *gin.Context) {
	s.mu.Lock()
	friends := make([]gin.H, 0, len(s.friends))
	for _, f := range s.friends {
		friends = append(friends, gin.H{"id": f.ID, "name": f.Name})
	}
	out := gin.H{"friends": friends, "total": len(s.friends)}
	if s.legacy {
		received, sent := []gin.H{}, []gin.H{}
		for _, inv := range s.invites {
			entry := gin.H{"id": inv.ID, "name": inv.Name}
			if inv.Direction == "from" {
				received = append(received, entry)
			} else {
				sent = append(sent, entry)
			}
		}
		out["received"], out["sent"] = received, sent
	} else {
		invites := make([]gin.H, 0, len(s.invites))
		for _, inv := range s.invites {
			invites = append(invites, gin.H{"id": inv.ID, "name": inv.Name, "direction": inv.Direction})
		}
		out["invites"] = invites
	}
	s.mu.Unlock()
	s.respond(c, out)
}

func (s *Server) searchUsers(c *gin.Context) {
	q := c.PostForm("search")
	s.mu.Lock()
	delay := s.delays[q]
	results := []gin.H{}
	for _, u := range s.directory {
		if q == "" || !strings.Contains(strings.ToLower(u.Name), strings.ToLower(q)) {
			continue
		}
		entry := gin.H{"id": u.ID, "name": u.Name}
		if u.Status != "" {
			entry["relationshipStatus"] = u.Status
		}
		results = append(results, entry)
	}
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.respond(c, gin.H{"results": results})
}

func (s *Server) createFriend(c *gin.Context) {
	id, name := c.Query("id"), c.Query("name")
	if id == "" {
		fail(c, http.StatusBadRequest, "id is required")
		return
	}
	s.mu.Lock()
	s.invites = append(s.invites, Invite{ID: id, Name: name, Direction: "to"})
	s.mu.Unlock()
	s.respond(c, gin.H{})
}

func (s *Server) acceptInvite(c *gin.Context) {
	id := c.PostForm("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invites {
		if inv.ID == id && inv.Direction == "from" {
			s.invites = append(s.invites[:i], s.invites[i+1:]...)
			s.friends = append(s.friends, User{ID: inv.ID, Name: inv.Name})
			c.JSON(http.StatusOK, gin.H{})
			return
		}
	}
	fail(c, http.StatusNotFound, "invitation not found")
}

func (s *Server) ignoreInvite(c *gin.Context) {
	id := c.PostForm("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invites {
		if inv.ID == id && inv.Direction == "from" {
			s.invites = append(s.invites[:i], s.invites[i+1:]...)
			c.Status(http.StatusOK)
			return
		}
	}
	fail(c, http.StatusNotFound, "invitation not found")
}

func (s *Server) deleteFriend(c *gin.Context) {
	id := c.Query("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.friends {
		if f.ID == id {
			s.friends = append(s.friends[:i], s.friends[i+1:]...)
			c.Status(http.StatusOK)
			return
		}
	}
	for i, inv := range s.invites {
		if inv.ID == id && inv.Direction == "to" {
			s.invites = append(s.invites[:i], s.invites[i+1:]...)
			c.Status(http.StatusOK)
			return
		}
	}
	fail(c, http.StatusNotFound, "friend not found")
}

// ============================================================================
// Welcome and notifications
// ============================================================================

func (s *Server) getWelcome(c *gin.Context) {
	s.mu.Lock()
	out := gin.H{"seen": s.welcomeSeen, "count": len(s.friends)}
	s.mu.Unlock()
	s.respond(c, out)
}

func (s *Server) markWelcomeSeen(c *gin.Context) {
	s.mu.Lock()
	s.welcomeSeen = true
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) checkNotifications(c *gin.Context) {
	s.mu.Lock()
	out := gin.H{"exists": s.subscribed}
	s.mu.Unlock()
	s.respond(c, out)
}

// ============================================================================
// Groups
// ============================================================================

func groupJSON(g Group) gin.H {
	out := gin.H{"id": g.ID, "name": g.Name}
	if g.Description != "" {
		out["description"] = g.Description
	}
	return out
}

func (s *Server) findGroup(id string) int {
	for i, g := range s.groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) listGroups(c *gin.Context) {
	s.mu.Lock()
	groups := make([]gin.H, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, groupJSON(g))
	}
	s.mu.Unlock()
	s.respond(c, gin.H{"groups": groups})
}

func (s *Server) getGroup(c *gin.Context) {
	id := c.PostForm("id")
	s.mu.Lock()
	i := s.findGroup(id)
	if i < 0 {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "group not found")
		return
	}
	members := make([]gin.H, 0, len(s.members[id]))
	for _, m := range s.members[id] {
		members = append(members, gin.H{"member": m.Member, "name": m.Name, "type": m.Type})
	}
	out := gin.H{"group": groupJSON(s.groups[i]), "members": members}
	s.mu.Unlock()
	s.respond(c, out)
}

func (s *Server) createGroup(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		fail(c, http.StatusBadRequest, "name is required")
		return
	}
	id := c.PostForm("id")
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findGroup(id) >= 0 {
		fail(c, http.StatusConflict, "group already exists")
		return
	}
	s.groups = append(s.groups, Group{ID: id, Name: name, Description: c.PostForm("description")})
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) updateGroup(c *gin.Context) {
	id := c.PostForm("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findGroup(id)
	if i < 0 {
		fail(c, http.StatusNotFound, "group not found")
		return
	}
	if name, ok := c.GetPostForm("name"); ok && name != "" {
		s.groups[i].Name = name
	}
	if desc, ok := c.GetPostForm("description"); ok {
		s.groups[i].Description = desc
	}
	c.Status(http.StatusOK)
}

func (s *Server) deleteGroup(c *gin.Context) {
	id := c.PostForm("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findGroup(id)
	if i < 0 {
		fail(c, http.StatusNotFound, "group not found")
		return
	}
	s.groups = append(s.groups[:i], s.groups[i+1:]...)
	delete(s.members, id)
	c.Status(http.StatusOK)
}

func (s *Server) addMember(c *gin.Context) {
	group, member, typ := c.PostForm("group"), c.PostForm("member"), c.PostForm("type")
	if typ != "user" && typ != "group" {
		fail(c, http.StatusBadRequest, "invalid member type")
		return
	}
	if typ == "group" && member == group {
		fail(c, http.StatusBadRequest, "a group cannot contain itself")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findGroup(group) < 0 {
		fail(c, http.StatusNotFound, "group not found")
		return
	}
	name := member
	for _, f := range s.friends {
		if f.ID == member {
			name = f.Name
		}
	}
	if i := s.findGroup(member); typ == "group" && i >= 0 {
		name = s.groups[i].Name
	}
	s.members[group] = append(s.members[group], Member{Member: member, Name: name, Type: typ})
	c.Status(http.StatusOK)
}

func (s *Server) removeMember(c *gin.Context) {
	group, member := c.PostForm("group"), c.PostForm("member")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members[group] {
		if m.Member == member {
			s.members[group] = append(s.members[group][:i], s.members[group][i+1:]...)
			c.Status(http.StatusOK)
			return
		}
	}
	fail(c, http.StatusNotFound, "member not found")
}

// ============================================================================
// Chat
// ============================================================================

func (s *Server) newChat(c *gin.Context) {
	s.mu.Lock()
	friends := make([]gin.H, 0, len(s.friends))
	for _, f := range s.friends {
		friends = append(friends, gin.H{"class": "person", "id": f.ID, "identity": f.ID, "name": f.Name})
	}
	s.mu.Unlock()
	s.respond(c, gin.H{"friends": friends, "name": "Me"})
}

type createChatBody struct {
	Name    string `json:"name"`
	Members string `json:"members" binding:"required"`
}

func (s *Server) createChat(c *gin.Context) {
	var body createChatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	members := []gin.H{}
	for _, id := range strings.Split(body.Members, ",") {
		name := id
		for _, f := range s.friends {
			if f.ID == id {
				name = f.Name
			}
		}
		members = append(members, gin.H{"id": id, "name": name})
	}
	id := uuid.NewString()
	chat := map[string]any{
		"id":          id,
		"fingerprint": strings.ReplaceAll(id, "-", "")[:9],
		"members":     members,
		"name":        body.Name,
		"key":         "k-" + id,
	}
	s.chats = append(s.chats, chat)
	s.mu.Unlock()
	s.respond(c, chat)
}

func (s *Server) listChats(c *gin.Context) {
	s.mu.Lock()
	chats := make([]gin.H, 0, len(s.chats))
	for _, ch := range s.chats {
		chats = append(chats, gin.H{"id": ch["id"], "identity": ch["id"], "key": ch["key"], "name": ch["name"], "updated": time.Now().Unix()})
	}
	s.mu.Unlock()
	s.respond(c, chats)
}
