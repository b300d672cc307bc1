// Package testutil provides an in-process fake of the quiz backend.
package testutil

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/services/logger"
)

type account struct {
	user     classroom.User
	password string
}

type membership struct {
	groupID  int
	userID   int
	role     string
	joinedAt time.Time
}

// Backend is a stateful fake of the REST backend. Every handled call is counted by
// "METHOD /route/pattern" (e.g. "GET /group/:id/tasks").
type Backend struct {
	Server *httptest.Server

	mu          sync.Mutex
	calls       map[string]int
	seq         int
	accounts    map[string]*account // by email
	tokens      map[string]int      // token -> user id
	groups      map[int]classroom.Group
	members     []membership
	tasks       map[int]classroom.Task
	submissions map[int]classroom.Submission
}

type detail struct {
	Detail interface{} `json:"detail"`
}

type fieldDetail struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

// NewBackend starts a fake backend closed at the end of the test.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		calls:       make(map[string]int),
		accounts:    make(map[string]*account),
		tokens:      make(map[string]int),
		groups:      make(map[int]classroom.Group),
		tasks:       make(map[int]classroom.Task),
		submissions: make(map[int]classroom.Submission),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL of the fake.
func (b *Backend) URL() string { return b.Server.URL }

// Calls returns how many times the route `key` ("METHOD /pattern") was hit.
func (b *Backend) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// ResetCalls zeroes every counter.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

// CreateUser registers an account and returns it with a valid token.
func (b *Backend) CreateUser(t *testing.T, username, email, pwd string) (classroom.User, string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[email]; ok {
		t.Fatalf("CreateUser() failed: %s already exists", email)
	}
	usr := b.addAccount(username, email, pwd)
	return usr, b.issueToken(usr.ID)
}

// CreateGroup creates a group owned by the token's user.
func (b *Backend) CreateGroup(t *testing.T, token, title string) classroom.Group {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.tokens[token]
	if !ok {
		t.Fatalf("CreateGroup() failed: unknown token")
	}
	return b.addGroup(uid, title, null.String{})
}

// CreateTask adds a task to a group.
func (b *Backend) CreateTask(t *testing.T, groupID int, title, taskType string, qs classroom.Questions) classroom.Task {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groups[groupID]; !ok {
		t.Fatalf("CreateTask() failed: unknown group %d", groupID)
	}
	return b.addTask(classroom.TaskCreate{GroupID: groupID, Title: title, TaskType: taskType, Questions: qs, IsRequired: true})
}

// Join makes the token's user a member of the group.
func (b *Backend) Join(t *testing.T, token string, groupID int) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	uid, ok := b.tokens[token]
	if !ok {
		t.Fatalf("Join() failed: unknown token")
	}
	b.members = append(b.members, membership{groupID: groupID, userID: uid, role: classroom.RoleMember, joinedAt: time.Now()})
}

// Revoke invalidates a token; the next call using it gets a 401.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
}

// Submissions returns every stored submission of a task.
func (b *Backend) Submissions(taskID int) []classroom.Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.taskSubmissions(taskID)
}

// internals; callers hold b.mu

func (b *Backend) nextID() int {
	b.seq++
	return b.seq
}

func (b *Backend) addAccount(username, email, pwd string) classroom.User {
	usr := classroom.User{
		ID:        b.nextID(),
		Username:  username,
		Email:     email,
		CreatedAt: classroom.Timestamp{Time: time.Now().UTC()},
	}
	b.accounts[email] = &account{user: usr, password: pwd}
	return usr
}

func (b *Backend) issueToken(uid int) string {
	tok := uuid.NewString()
	b.tokens[tok] = uid
	return tok
}

func (b *Backend) accountByID(uid int) *account {
	for _, acc := range b.accounts {
		if acc.user.ID == uid {
			return acc
		}
	}
	return nil
}

func (b *Backend) addGroup(owner int, title string, desc null.String) classroom.Group {
	grp := classroom.Group{
		ID:          b.nextID(),
		Title:       title,
		Description: desc,
		OwnerID:     owner,
		GroupCode:   strings.ToUpper(uuid.NewString()[:8]),
		CreatedAt:   classroom.Timestamp{Time: time.Now().UTC()},
	}
	b.groups[grp.ID] = grp
	b.members = append(b.members, membership{groupID: grp.ID, userID: owner, role: classroom.RoleOwner, joinedAt: time.Now()})
	return grp
}

func (b *Backend) addTask(data classroom.TaskCreate) classroom.Task {
	task := classroom.Task{
		ID:          b.nextID(),
		GroupID:     data.GroupID,
		Title:       data.Title,
		Description: data.Description,
		TaskType:    data.TaskType,
		Questions:   data.Questions,
		IsRequired:  data.IsRequired,
		CreatedAt:   classroom.Timestamp{Time: time.Now().UTC()},
	}
	b.tasks[task.ID] = task
	return task
}

func (b *Backend) role(groupID, uid int) string {
	for _, m := range b.members {
		if m.groupID == groupID && m.userID == uid {
			return m.role
		}
	}
	return ""
}

func (b *Backend) taskSubmissions(taskID int) []classroom.Submission {
	subs := make([]classroom.Submission, 0)
	for id := 1; id <= b.seq; id++ {
		if sub, ok := b.submissions[id]; ok && sub.TaskID == taskID {
			subs = append(subs, sub)
		}
	}
	return subs
}

// routes

func (b *Backend) routes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Use(b.count)

	e.POST("/auth/register", b.register)
	e.POST("/auth/login", b.login)
	e.DELETE("/auth/logout", b.auth(b.logout))

	e.GET("/profile", b.auth(b.getProfile))
	e.PUT("/profile", b.auth(b.updateProfile))
	e.POST("/profile/avatar", b.auth(b.uploadAvatar))
	e.DELETE("/profile/avatar", b.auth(b.deleteAvatar))

	e.POST("/group", b.auth(b.createGroup))
	e.GET("/groups", b.auth(b.listGroups))
	e.POST("/group/join", b.auth(b.joinGroup))
	e.GET("/group/:id", b.auth(b.getGroup))
	e.DELETE("/group/:id", b.auth(b.deleteGroup))
	e.GET("/group/:id/members", b.auth(b.listMembers))
	e.GET("/group/:id/tasks", b.auth(b.listTasks))

	e.POST("/task", b.auth(b.createTask))
	e.GET("/task/:id", b.auth(b.getTask))
	e.DELETE("/task/:id", b.auth(b.deleteTask))
	e.POST("/task/:id/submit", b.auth(b.submit))
	e.GET("/task/:id/submissions", b.auth(b.listSubmissions))
	e.GET("/task/:id/my-submission", b.auth(b.mySubmission))

	e.PUT("/submission/:id/score", b.auth(b.updateScore))
	return e
}

func (b *Backend) count(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		b.mu.Lock()
		b.calls[c.Request().Method+" "+c.Path()]++
		b.mu.Unlock()
		return err
	}
}

func (b *Backend) auth(h func(c echo.Context, uid int) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		b.mu.Lock()
		uid, ok := b.tokens[c.QueryParam("token")]
		b.mu.Unlock()
		if !ok {
			return c.JSON(http.StatusUnauthorized, detail{"Invalid or expired token"})
		}
		return h(c, uid)
	}
}

func paramID(c echo.Context) int {
	id, _ := strconv.Atoi(c.Param("id"))
	return id
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, detail{msg})
}

func missing(fields ...string) detail {
	flds := make([]fieldDetail, 0, len(fields))
	for _, f := range fields {
		flds = append(flds, fieldDetail{Loc: []interface{}{"body", f}, Msg: f + " field required", Type: "value_error.missing"})
	}
	return detail{flds}
}

func (b *Backend) register(c echo.Context) error {
	var data classroom.UserRegister
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}
	var empty []string
	for name, v := range map[string]string{"email": data.Email, "password": data.Password, "username": data.Username} {
		if v == "" {
			empty = append(empty, name)
		}
	}
	if len(empty) > 0 {
		sort.Strings(empty)
		return c.JSON(http.StatusUnprocessableEntity, missing(empty...))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[data.Email]; ok {
		return fail(c, http.StatusBadRequest, "Email already registered")
	}
	usr := b.addAccount(data.Username, data.Email, data.Password)
	return c.JSON(http.StatusOK, classroom.RegisterResponse{Message: "User registered successfully", User: usr})
}

func (b *Backend) login(c echo.Context) error {
	var data classroom.UserLogin
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[data.Email]
	if !ok || acc.password != data.Password {
		return fail(c, http.StatusUnauthorized, "Invalid email or password")
	}
	return c.JSON(http.StatusOK, classroom.AuthResponse{
		Message: "Login successful",
		User:    acc.user,
		Token:   b.issueToken(acc.user.ID),
	})
}

func (b *Backend) logout(c echo.Context, _ int) error {
	b.mu.Lock()
	delete(b.tokens, c.QueryParam("token"))
	b.mu.Unlock()
	return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Logged out"})
}

func (b *Backend) getProfile(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.JSON(http.StatusOK, b.accountByID(uid).user)
}

func (b *Backend) updateProfile(c echo.Context, uid int) error {
	var data classroom.ProfileUpdate
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByID(uid)
	if data.Email.Valid && data.Email.String != acc.user.Email {
		if _, taken := b.accounts[data.Email.String]; taken {
			return fail(c, http.StatusBadRequest, "Email already in use")
		}
		delete(b.accounts, acc.user.Email)
		acc.user.Email = data.Email.String
		b.accounts[acc.user.Email] = acc
	}
	if data.Username.Valid {
		acc.user.Username = data.Username.String
	}
	return c.JSON(http.StatusOK, acc.user)
}

func (b *Backend) uploadAvatar(c echo.Context, uid int) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, missing("file"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByID(uid)
	acc.user.Avatar = null.StringFrom(fmt.Sprintf("/static/avatars/%d_%s", uid, file.Filename))
	return c.JSON(http.StatusOK, acc.user)
}

func (b *Backend) deleteAvatar(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByID(uid)
	if !acc.user.Avatar.Valid {
		return fail(c, http.StatusNotFound, "No avatar to delete")
	}
	acc.user.Avatar = null.String{}
	return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Avatar deleted"})
}

func (b *Backend) createGroup(c echo.Context, uid int) error {
	var data classroom.GroupCreate
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}
	if data.Title == "" {
		return c.JSON(http.StatusUnprocessableEntity, missing("title"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	grp := b.addGroup(uid, data.Title, data.Description)
	grp.Role = classroom.RoleOwner
	return c.JSON(http.StatusOK, grp)
}

func (b *Backend) listGroups(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grps := make([]classroom.Group, 0)
	for _, m := range b.members {
		if m.userID != uid {
			continue
		}
		if grp, ok := b.groups[m.groupID]; ok {
			grp.Role = m.role
			grps = append(grps, grp)
		}
	}
	return c.JSON(http.StatusOK, grps)
}

func (b *Backend) getGroup(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grp, ok := b.groups[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Group not found")
	}
	role := b.role(grp.ID, uid)
	if role == "" {
		return fail(c, http.StatusForbidden, "Not a member of this group")
	}
	grp.Role = role
	return c.JSON(http.StatusOK, grp)
}

func (b *Backend) deleteGroup(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	grp, ok := b.groups[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Group not found")
	}
	if grp.OwnerID != uid {
		return fail(c, http.StatusForbidden, "Only the group owner can delete the group")
	}
	delete(b.groups, grp.ID)
	return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Group deleted"})
}

func (b *Backend) joinGroup(c echo.Context, uid int) error {
	var data classroom.GroupJoin
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, grp := range b.groups {
		if grp.GroupCode != data.GroupCode {
			continue
		}
		if b.role(grp.ID, uid) != "" {
			return fail(c, http.StatusBadRequest, "Already a member of this group")
		}
		b.members = append(b.members, membership{groupID: grp.ID, userID: uid, role: classroom.RoleMember, joinedAt: time.Now()})
		return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Joined group successfully"})
	}
	return fail(c, http.StatusNotFound, "Group not found")
}

func (b *Backend) listMembers(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	gid := paramID(c)
	if b.role(gid, uid) == "" {
		return fail(c, http.StatusForbidden, "Not a member of this group")
	}
	members := make([]classroom.GroupMember, 0)
	for _, m := range b.members {
		if m.groupID != gid {
			continue
		}
		acc := b.accountByID(m.userID)
		members = append(members, classroom.GroupMember{
			ID:       acc.user.ID,
			Username: acc.user.Username,
			Email:    acc.user.Email,
			Role:     m.role,
			JoinedAt: classroom.Timestamp{Time: m.joinedAt.UTC()},
		})
	}
	return c.JSON(http.StatusOK, members)
}

func (b *Backend) listTasks(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	gid := paramID(c)
	if b.role(gid, uid) == "" {
		return fail(c, http.StatusForbidden, "Not a member of this group")
	}
	tasks := make([]classroom.Task, 0)
	for id := 1; id <= b.seq; id++ {
		if task, ok := b.tasks[id]; ok && task.GroupID == gid {
			tasks = append(tasks, task)
		}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (b *Backend) createTask(c echo.Context, uid int) error {
	var data classroom.TaskCreate
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}
	if data.Title == "" {
		return c.JSON(http.StatusUnprocessableEntity, missing("title"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.role(data.GroupID, uid) != classroom.RoleOwner {
		return fail(c, http.StatusForbidden, "Only the group owner can create tasks")
	}
	return c.JSON(http.StatusOK, b.addTask(data))
}

func (b *Backend) getTask(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if b.role(task.GroupID, uid) == "" {
		return fail(c, http.StatusForbidden, "Not a member of this group")
	}
	return c.JSON(http.StatusOK, task)
}

func (b *Backend) deleteTask(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if b.role(task.GroupID, uid) != classroom.RoleOwner {
		return fail(c, http.StatusForbidden, "Only the group owner can delete tasks")
	}
	delete(b.tasks, task.ID)
	return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Task deleted"})
}

func (b *Backend) submit(c echo.Context, uid int) error {
	var data classroom.SubmissionCreate
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if b.role(task.GroupID, uid) == "" {
		return fail(c, http.StatusForbidden, "Not a member of this group")
	}
	for _, sub := range b.taskSubmissions(task.ID) {
		if sub.UserID == uid {
			return fail(c, http.StatusBadRequest, "Already submitted")
		}
	}
	sub := classroom.Submission{
		ID:          b.nextID(),
		TaskID:      task.ID,
		UserID:      uid,
		GroupID:     task.GroupID,
		AnswerText:  data.AnswerText,
		QuizAnswers: data.QuizAnswers,
		SubmittedAt: classroom.Timestamp{Time: time.Now().UTC()},
		Username:    b.accountByID(uid).user.Username,
		TaskTitle:   task.Title,
	}
	if task.IsQuiz() {
		sub.Score = null.Float64From(grade(task.Questions, sub))
	}
	b.submissions[sub.ID] = sub
	return c.JSON(http.StatusOK, sub)
}

// grade scores a quiz submission as the percentage of correct answers.
func grade(qs classroom.Questions, sub classroom.Submission) float64 {
	if len(qs) == 0 {
		return 0
	}
	var correct int
	for i, q := range qs {
		if ans, ok := sub.AnswerFor(i); ok && strings.EqualFold(strings.TrimSpace(ans), q.CorrectAnswer()) {
			correct++
		}
	}
	return float64(correct) * 100 / float64(len(qs))
}

func (b *Backend) listSubmissions(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	task, ok := b.tasks[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Task not found")
	}
	if b.role(task.GroupID, uid) != classroom.RoleOwner {
		return fail(c, http.StatusForbidden, "Only the group owner can view submissions")
	}
	return c.JSON(http.StatusOK, b.taskSubmissions(task.ID))
}

func (b *Backend) mySubmission(c echo.Context, uid int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.taskSubmissions(paramID(c)) {
		if sub.UserID == uid {
			return c.JSON(http.StatusOK, sub)
		}
	}
	return fail(c, http.StatusNotFound, "Submission not found")
}

func (b *Backend) updateScore(c echo.Context, uid int) error {
	var data classroom.ScoreUpdate
	if err := c.Bind(&data); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid body")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.submissions[paramID(c)]
	if !ok {
		return fail(c, http.StatusNotFound, "Submission not found")
	}
	if b.role(sub.GroupID, uid) != classroom.RoleOwner {
		return fail(c, http.StatusForbidden, "Only the group owner can grade")
	}
	sub.Score = null.Float64From(data.Score)
	b.submissions[sub.ID] = sub
	return c.JSON(http.StatusOK, classroom.MessageResponse{Message: "Score updated"})
}

// NewLogger returns a silent logger with rollbar reporting disabled.
func NewLogger() *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "TEST", Build: "test"})
	logger.Enable(false)
	return logger
}
