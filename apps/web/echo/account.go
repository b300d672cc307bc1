package echoweb

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/quizboard/core"
	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/querycache"
)

const registeredButLoginFailed = "Registration successful but login failed. Please try logging in."

func (v *views) home(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "home", newPage(ctx, "Welcome", nil))
}

func (v *views) loginPage(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "login", newPage(ctx, "Sign in", classroom.LoginForm{}))
}

func (v *views) login(ctx echo.Context) error {
	st := getState(ctx)
	var form classroom.LoginForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to LoginForm")
	}
	p := newPage(ctx, "Sign in", form)
	if err := form.Validate(v.validator); err != nil {
		return v.inline(ctx, "login", p, err)
	}

	resp, err := st.api.Login(ctx.Request().Context(), form.Build())
	if err != nil {
		// bad credentials are a 401 too: they stay on the form
		return v.inline(ctx, "login", p, err)
	}
	if err := st.sess.SignIn(ctx.Request().Context(), resp.Token, resp.User); err != nil {
		return errors.Wrap(err, "signing in")
	}
	return redirect(ctx, studentPath)
}

func (v *views) registerPage(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "register", newPage(ctx, "Create an account", classroom.RegisterForm{}))
}

// register creates the account then signs in with the same credentials.
func (v *views) register(ctx echo.Context) error {
	st := getState(ctx)
	reqCtx := ctx.Request().Context()
	var form classroom.RegisterForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to RegisterForm")
	}
	p := newPage(ctx, "Create an account", form)
	if err := form.Validate(v.validator); err != nil {
		return v.inline(ctx, "register", p, err)
	}

	if _, err := st.api.Register(reqCtx, form.Build()); err != nil {
		return v.inline(ctx, "register", p, err)
	}
	resp, err := st.api.Login(reqCtx, classroom.UserLogin{Email: form.Email, Password: form.Password})
	if err != nil {
		v.logger.Warn("login after registration failed", err)
		p.Error = registeredButLoginFailed
		return ctx.Render(http.StatusOK, "register", p)
	}
	if err := st.sess.SignIn(reqCtx, resp.Token, resp.User); err != nil {
		return errors.Wrap(err, "signing in")
	}
	return redirect(ctx, studentPath)
}

// logout revokes the token on the backend (best effort) then forgets the session.
func (v *views) logout(ctx echo.Context) error {
	st := getState(ctx)
	reqCtx := ctx.Request().Context()
	if st.sess.IsAuthenticated() {
		if _, err := st.api.Logout(reqCtx); err != nil {
			v.logger.Warn("backend logout failed", err)
		}
	}
	if err := st.sess.Logout(reqCtx); err != nil {
		return errors.Wrap(err, "clearing session")
	}
	if err := st.scope.Clear(reqCtx); err != nil {
		v.logger.Warn("failed to clear cache on logout", err)
	}
	return redirect(ctx, "/")
}

type profileView struct {
	Profile classroom.User
	Form    classroom.ProfileForm
}

func (v *views) profileView(ctx echo.Context, form *classroom.ProfileForm) (*profileView, error) {
	usr, err := getState(ctx).profile(ctx.Request().Context())
	if err != nil {
		return nil, err
	}
	pv := &profileView{Profile: usr, Form: classroom.ProfileForm{Username: usr.Username, Email: usr.Email}}
	if form != nil {
		pv.Form = *form
	}
	return pv, nil
}

func (v *views) profile(ctx echo.Context) error {
	pv, err := v.profileView(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Render(http.StatusOK, "profile", newPage(ctx, "Profile", pv))
}

// profileFailure re-renders the profile page around a failed mutation.
func (v *views) profileFailure(ctx echo.Context, form *classroom.ProfileForm, err error) error {
	pv, fErr := v.profileView(ctx, form)
	if fErr != nil {
		return fErr
	}
	return v.failure(ctx, "profile", newPage(ctx, "Profile", pv), err)
}

func (v *views) updateProfile(ctx echo.Context) error {
	st := getState(ctx)
	var form classroom.ProfileForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ProfileForm")
	}
	if err := form.Validate(v.validator); err != nil {
		return v.profileFailure(ctx, &form, err)
	}

	usr, err := st.api.UpdateProfile(ctx.Request().Context(), form.Build())
	if err != nil {
		return v.profileFailure(ctx, &form, err)
	}
	if err := st.sess.SetUser(ctx.Request().Context(), &usr); err != nil {
		return errors.Wrap(err, "storing updated user")
	}
	v.invalidate(ctx, querycache.Profile())
	return redirect(ctx, "/profile")
}

func (v *views) uploadAvatar(ctx echo.Context) error {
	st := getState(ctx)
	fh, err := ctx.FormFile("avatar")
	if err != nil {
		return v.profileFailure(ctx, nil, core.NewValidationError(err, core.FieldError{Field: "avatar", Error: "avatar is required"}))
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded avatar")
	}
	defer func() { _ = src.Close() }()

	usr, err := st.api.UploadAvatar(ctx.Request().Context(), fh.Filename, src)
	if err != nil {
		return v.profileFailure(ctx, nil, err)
	}
	if err := st.sess.SetUser(ctx.Request().Context(), &usr); err != nil {
		return errors.Wrap(err, "storing updated user")
	}
	v.invalidate(ctx, querycache.Profile())
	return redirect(ctx, "/profile")
}

func (v *views) deleteAvatar(ctx echo.Context) error {
	st := getState(ctx)
	if _, err := st.api.DeleteAvatar(ctx.Request().Context()); err != nil {
		return v.profileFailure(ctx, nil, err)
	}
	if usr, ok := st.sess.User(); ok {
		usr.Avatar = null.String{}
		if err := st.sess.SetUser(ctx.Request().Context(), &usr); err != nil {
			return errors.Wrap(err, "storing updated user")
		}
	}
	v.invalidate(ctx, querycache.Profile())
	return redirect(ctx, "/profile")
}
