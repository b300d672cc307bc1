package apiclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core/classroom"
)

func (c *Client) GetProfile(ctx context.Context) (classroom.User, error) {
	var usr classroom.User
	err := c.do(ctx, request{method: http.MethodGet, path: "/profile"}, &usr)
	return usr, err
}

func (c *Client) UpdateProfile(ctx context.Context, data classroom.ProfileUpdate) (classroom.User, error) {
	var usr classroom.User
	data.Token = c.token()
	err := c.do(ctx, request{method: http.MethodPut, path: "/profile", body: data}, &usr)
	return usr, err
}

// UploadAvatar sends the image as the multipart `file` field.
func (c *Client) UploadAvatar(ctx context.Context, filename string, r io.Reader) (classroom.User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return classroom.User{}, errors.Wrap(err, "creating multipart file")
	}
	if _, err = io.Copy(part, r); err != nil {
		return classroom.User{}, errors.Wrap(err, "copying avatar")
	}
	if err = mw.Close(); err != nil {
		return classroom.User{}, errors.Wrap(err, "closing multipart writer")
	}

	var usr classroom.User
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/profile/avatar",
		rawBody:     &buf,
		contentType: mw.FormDataContentType(),
	}, &usr)
	return usr, err
}

func (c *Client) DeleteAvatar(ctx context.Context) (classroom.MessageResponse, error) {
	var resp classroom.MessageResponse
	body := classroom.TokenRequest{Token: c.token()}
	err := c.do(ctx, request{method: http.MethodDelete, path: "/profile/avatar", body: body}, &resp)
	return resp, err
}
