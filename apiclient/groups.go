package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/trezcool/quizboard/core/classroom"
)

func groupPath(id int) string {
	return "/group/" + strconv.Itoa(id)
}

func (c *Client) CreateGroup(ctx context.Context, data classroom.GroupCreate) (classroom.Group, error) {
	var grp classroom.Group
	data.Token = c.token()
	err := c.do(ctx, request{method: http.MethodPost, path: "/group", body: data}, &grp)
	return grp, err
}

// ListGroups returns the groups the user owns or belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]classroom.Group, error) {
	var grps []classroom.Group
	err := c.do(ctx, request{method: http.MethodGet, path: "/groups"}, &grps)
	return grps, err
}

func (c *Client) GetGroup(ctx context.Context, id int) (classroom.Group, error) {
	var grp classroom.Group
	err := c.do(ctx, request{method: http.MethodGet, path: groupPath(id)}, &grp)
	return grp, err
}

func (c *Client) DeleteGroup(ctx context.Context, id int) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	err := c.do(ctx, request{method: http.MethodDelete, path: groupPath(id)}, &resp)
	return resp, err
}

func (c *Client) JoinGroup(ctx context.Context, data classroom.GroupJoin) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	data.Token = c.token()
	err := c.do(ctx, request{method: http.MethodPost, path: "/group/join", body: data}, &resp)
	return resp, err
}

func (c *Client) ListGroupMembers(ctx context.Context, id int) ([]classroom.GroupMember, error) {
	var members []classroom.GroupMember
	err := c.do(ctx, request{method: http.MethodGet, path: groupPath(id) + "/members"}, &members)
	return members, err
}
