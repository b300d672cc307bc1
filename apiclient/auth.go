package apiclient

import (
	"context"
	"net/http"

	"github.com/trezcool/quizboard/core/classroom"
)

func (c *Client) Login(ctx context.Context, data classroom.UserLogin) (classroom.AuthResponse, error) {
	var resp classroom.AuthResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: data}, &resp)
	return resp, err
}

func (c *Client) Register(ctx context.Context, data classroom.UserRegister) (classroom.RegisterResponse, error) {
	var resp classroom.RegisterResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: data}, &resp)
	return resp, err
}

// Logout revokes the current token on the backend. Clearing the local session is up to the caller.
func (c *Client) Logout(ctx context.Context) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	body := classroom.TokenRequest{Token: c.token()}
	err := c.do(ctx, request{method: http.MethodDelete, path: "/auth/logout", body: body}, &resp)
	return resp, err
}
