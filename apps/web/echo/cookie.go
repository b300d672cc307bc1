package echoweb

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/quizboard/core"
)

var errInvalidCookie = errors.New("invalid session cookie")

// Claims are carried by the signed session cookie; they only identify the session.
type Claims struct {
	jwt.StandardClaims
	SessionID string `json:"sid"`
}

type cookieCodec struct {
	name   string
	key    []byte
	issuer string
	maxAge time.Duration
	secure bool
}

func newCookieCodec(conf *core.Config) cookieCodec {
	return cookieCodec{
		name:   conf.Session.CookieName,
		key:    []byte(conf.SecretKey),
		issuer: conf.AppName,
		maxAge: conf.Session.MaxAge,
		secure: !conf.Debug,
	}
}

// encode signs a token holding `sid`.
func (cc cookieCodec) encode(sid string, now time.Time) (string, error) {
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    cc.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(cc.maxAge).Unix(),
		},
		SessionID: sid,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cc.key)
	if err != nil {
		return "", errors.Wrap(err, "signing session cookie")
	}
	return ss, nil
}

// decode verifies `raw` and returns the session id it carries.
func (cc cookieCodec) decode(raw string) (string, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errInvalidCookie
		}
		return cc.key, nil
	})
	if err != nil {
		return "", errors.Wrap(err, "parsing session cookie")
	}
	if claims.SessionID == "" || claims.Issuer != cc.issuer {
		return "", errInvalidCookie
	}
	return claims.SessionID, nil
}

// sessionID returns the id carried by the request's cookie, or issues a new one.
func (cc cookieCodec) sessionID(ctx echo.Context, newID func() string) (string, error) {
	if c, err := ctx.Cookie(cc.name); err == nil {
		if sid, err := cc.decode(c.Value); err == nil {
			return sid, nil
		}
	}

	sid := newID()
	value, err := cc.encode(sid, time.Now())
	if err != nil {
		return "", err
	}
	ctx.SetCookie(&http.Cookie{
		Name:     cc.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cc.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   cc.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}
