package httpadapter

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/art-insight-service/internal/core/domain"
)

// subjectHandler is a handler that runs after identity resolution.
type subjectHandler func(w http.ResponseWriter, r *http.Request, subject domain.Subject)

// authenticator verifies bearer tokens. Issuance lives elsewhere; this
// layer only needs the subject id and the guest flag.
type authenticator struct {
	secret []byte
}

func newAuthenticator(secret string) *authenticator {
	return &authenticator{secret: []byte(secret)}
}

// require rejects requests without a valid token.
func (a *authenticator) require(next subjectHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.subjectFromRequest(r)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}
		next(w, r, subject)
	}
}

// public serves anonymous callers under a synthesized guest identity so
// rate limiting still has a stable key; a valid token is honored.
func (a *authenticator) public(next subjectHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next(w, r, anonymousSubject(r))
			return
		}
		subject, err := a.subjectFromRequest(r)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrUnauthorized, "authenticate", err))
			return
		}
		next(w, r, subject)
	}
}

func (a *authenticator) subjectFromRequest(r *http.Request) (domain.Subject, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return domain.Subject{}, errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Subject{}, fmt.Errorf("parse token: %w", err)
	}

	subjectID, err := claims.GetSubject()
	if err != nil || subjectID == "" {
		return domain.Subject{}, errors.New("token has no subject")
	}
	username, _ := claims["username"].(string)
	return domain.NewSubject(subjectID, username), nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// anonymousSubject keys unauthenticated callers by client address so the
// per-subject limiter applies to them too.
func anonymousSubject(r *http.Request) domain.Subject {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return domain.NewSubject("anon:"+host, "guest_"+host)
}
