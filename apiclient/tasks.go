package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/trezcool/quizboard/core/classroom"
)

func taskPath(id int) string {
	return "/task/" + strconv.Itoa(id)
}

func (c *Client) CreateTask(ctx context.Context, data classroom.TaskCreate) (classroom.Task, error) {
	var task classroom.Task
	data.Token = c.token()
	err := c.do(ctx, request{method: http.MethodPost, path: "/task", body: data}, &task)
	return task, err
}

func (c *Client) ListTasks(ctx context.Context, groupID int) ([]classroom.Task, error) {
	var tasks []classroom.Task
	err := c.do(ctx, request{method: http.MethodGet, path: groupPath(groupID) + "/tasks"}, &tasks)
	return tasks, err
}

func (c *Client) GetTask(ctx context.Context, id int) (classroom.Task, error) {
	var task classroom.Task
	err := c.do(ctx, request{method: http.MethodGet, path: taskPath(id)}, &task)
	return task, err
}

func (c *Client) DeleteTask(ctx context.Context, id int) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	err := c.do(ctx, request{method: http.MethodDelete, path: taskPath(id)}, &resp)
	return resp, err
}
