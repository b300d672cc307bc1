package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core/classroom"
)

func (cli *commandLine) login(ctx context.Context, email, pwd string) error {
	form := classroom.LoginForm{Email: email, Password: pwd}
	if err := form.Validate(cli.validator); err != nil {
		return err
	}
	resp, err := cli.api.Login(ctx, form.Build())
	if err != nil {
		return err
	}
	if err := cli.sess.SignIn(ctx, resp.Token, resp.User); err != nil {
		return errors.Wrap(err, "signing in")
	}
	fmt.Fprintf(cli.out, "Signed in as %s\n", resp.User.Username)
	return nil
}

// logout revokes the token on the backend (best effort) then forgets the session.
func (cli *commandLine) logout(ctx context.Context) error {
	if cli.sess.IsAuthenticated() {
		if _, err := cli.api.Logout(ctx); err != nil {
			fmt.Fprintf(cli.out, "warning: %s\n", errorMessage(err))
		}
	}
	if err := cli.sess.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "Signed out")
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	if err := cli.requireAuth(); err != nil {
		return err
	}
	usr, err := cli.api.GetProfile(ctx)
	if err != nil {
		return err
	}
	if err := cli.sess.SetUser(ctx, &usr); err != nil {
		return err
	}

	w := newTable(cli.out)
	fmt.Fprintf(w, "Username:\t%s\n", usr.Username)
	fmt.Fprintf(w, "Email:\t%s\n", usr.Email)
	if usr.Avatar.Valid {
		fmt.Fprintf(w, "Avatar:\t%s\n", usr.Avatar.String)
	}
	fmt.Fprintf(w, "Member since:\t%s\n", usr.CreatedAt.Display())
	return w.Flush()
}
