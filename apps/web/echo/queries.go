package echoweb

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/apiclient"
	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
)

// Cached reads. Every query is enabled only while the session holds a token.

func fetch[T any](ctx context.Context, st *requestState, key querycache.Key, fn func(context.Context) (T, error)) (T, error) {
	v, _, err := querycache.Fetch(ctx, st.scope, querycache.Query[T]{
		Key:     key,
		Enabled: st.sess.IsAuthenticated(),
		Fn:      fn,
	})
	return v, errors.Wrapf(err, "fetching %s", key)
}

func (st *requestState) profile(ctx context.Context) (classroom.User, error) {
	return fetch(ctx, st, querycache.Profile(), st.api.GetProfile)
}

func (st *requestState) myGroups(ctx context.Context) ([]classroom.Group, error) {
	return fetch(ctx, st, querycache.MyGroups(), st.api.ListGroups)
}

func (st *requestState) group(ctx context.Context, id int) (classroom.Group, error) {
	return fetch(ctx, st, querycache.Group(id), func(ctx context.Context) (classroom.Group, error) {
		return st.api.GetGroup(ctx, id)
	})
}

func (st *requestState) groupMembers(ctx context.Context, groupID int) ([]classroom.GroupMember, error) {
	return fetch(ctx, st, querycache.GroupMembers(groupID), func(ctx context.Context) ([]classroom.GroupMember, error) {
		return st.api.ListGroupMembers(ctx, groupID)
	})
}

func (st *requestState) tasks(ctx context.Context, groupID int) ([]classroom.Task, error) {
	return fetch(ctx, st, querycache.Tasks(groupID), func(ctx context.Context) ([]classroom.Task, error) {
		return st.api.ListTasks(ctx, groupID)
	})
}

func (st *requestState) task(ctx context.Context, id int) (classroom.Task, error) {
	return fetch(ctx, st, querycache.Task(id), func(ctx context.Context) (classroom.Task, error) {
		return st.api.GetTask(ctx, id)
	})
}

// mySubmission returns nil when the user has not submitted yet.
func (st *requestState) mySubmission(ctx context.Context, taskID int) (*classroom.Submission, error) {
	return fetch(ctx, st, querycache.MySubmission(taskID), func(ctx context.Context) (*classroom.Submission, error) {
		sub, err := st.api.GetMySubmission(ctx, taskID)
		if err != nil {
			var apiErr *apiclient.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return nil, nil
			}
			return nil, err
		}
		return &sub, nil
	})
}

func (st *requestState) submissions(ctx context.Context, taskID int) ([]classroom.Submission, error) {
	return fetch(ctx, st, querycache.Submissions(taskID), func(ctx context.Context) ([]classroom.Submission, error) {
		return st.api.ListSubmissions(ctx, taskID)
	})
}
