package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

// dummyHash is compared against when the username is unknown so that both
// paths pay the bcrypt cost.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("devspace"), bcrypt.DefaultCost)
	return h
})

// TokenIssuer signs and verifies API access tokens.
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	expire time.Duration
	users  map[string][]byte
	now    func() time.Time
}

// NewTokenIssuer builds an issuer from the security settings. Unknown
// algorithms fall back to HS256.
func NewTokenIssuer(cfg config.SecurityConfig) *TokenIssuer {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		method = jwt.SigningMethodHS256
	}
	expire := cfg.AccessTokenExpire
	if expire <= 0 {
		expire = 30 * time.Minute
	}
	users := make(map[string][]byte, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = []byte(u.PasswordHash)
	}
	return &TokenIssuer{
		secret: []byte(cfg.SecretKey),
		method: method,
		expire: expire,
		users:  users,
		now:    time.Now,
	}
}

// Login checks the credentials and issues a token for the user.
func (t *TokenIssuer) Login(username, password string) (string, time.Time, error) {
	hash, ok := t.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return "", time.Time{}, domain.NewDomainError("TokenIssuer.Login", domain.ErrAuthInvalid, "invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", time.Time{}, domain.NewDomainError("TokenIssuer.Login", domain.ErrAuthInvalid, "invalid username or password")
	}
	return t.Issue(username)
}

// Issue signs a token for subject.
func (t *TokenIssuer) Issue(subject string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.expire)
	token := jwt.NewWithClaims(t.method, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and returns its subject.
func (t *TokenIssuer) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{t.method.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return "", domain.NewDomainError("TokenIssuer.Verify", domain.ErrAuthInvalid, "invalid or expired token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", domain.NewDomainError("TokenIssuer.Verify", domain.ErrAuthInvalid, "token has no subject")
	}
	return sub, nil
}

type subjectKey struct{}

// SubjectFromContext returns the authenticated user, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeErrorCode(w, http.StatusUnauthorized, "missing bearer token", domain.CodeAuthInvalid)
			return
		}
		sub, err := s.auth.Verify(tok)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	})
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the body returned by POST /api/v1/auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// handleToken accepts JSON or form-encoded credentials.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.writeError(w, r, domain.NewDomainError("handleToken", domain.ErrInvalidInput, err.Error()))
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeError(w, r, domain.NewDomainError("handleToken", domain.ErrInvalidInput, "username and password are required"))
		return
	}

	token, _, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username)
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("token issued", "username", req.Username)
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.auth.expire / time.Second),
	})
}
