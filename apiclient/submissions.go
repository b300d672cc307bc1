package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/trezcool/quizboard/core/classroom"
)

func (c *Client) SubmitTask(ctx context.Context, taskID int, data classroom.SubmissionCreate) (classroom.Submission, error) {
	var sub classroom.Submission
	data.Token = c.token()
	err := c.do(ctx, request{method: http.MethodPost, path: taskPath(taskID) + "/submit", body: data}, &sub)
	return sub, err
}

// ListSubmissions returns every submission of a task; only the group owner may list them.
func (c *Client) ListSubmissions(ctx context.Context, taskID int) ([]classroom.Submission, error) {
	var subs []classroom.Submission
	err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID) + "/submissions"}, &subs)
	return subs, err
}

func (c *Client) GetMySubmission(ctx context.Context, taskID int) (classroom.Submission, error) {
	var sub classroom.Submission
	err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID) + "/my-submission"}, &sub)
	return sub, err
}

func (c *Client) UpdateSubmissionScore(ctx context.Context, submissionID int, score float64) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	body := classroom.ScoreUpdate{Token: c.token(), Score: score}
	path := "/submission/" + strconv.Itoa(submissionID) + "/score"
	err := c.do(ctx, request{method: http.MethodPut, path: path, body: body}, &resp)
	return resp, err
}
