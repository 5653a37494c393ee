package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/chardb/internal/server/dto"
	"github.com/maruel/chardb/internal/server/ratelimit"
	"github.com/maruel/chardb/internal/server/reqctx"
	"github.com/maruel/ksid"
)

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestContext assigns a request id and stores request metadata in the
// context. An incoming X-Request-ID is kept when it looks sane.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = ksid.NewID().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := reqctx.WithRequestID(r.Context(), id)
		ctx = reqctx.WithClientIP(ctx, reqctx.ClientIPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

// logRequests logs one line per request and feeds the HTTP metrics.
//
// Middlewares between this one and the ServeMux must not replace the
// *http.Request, otherwise the matched pattern is lost.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		d := time.Since(start)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ObserveHTTP(r.Method, pattern, sw.status, d)
		}
		ctx := r.Context()
		slog.InfoContext(ctx, "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur", d.Round(time.Microsecond),
			"size", sw.size,
			"id", reqctx.RequestID(ctx),
			"ip", reqctx.ClientIP(ctx))
	})
}

// recoverPanics answers 500 when a handler panics.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
				panic(v)
			}
			ctx := r.Context()
			slog.ErrorContext(ctx, "Handler panic", "panic", v, "stack", string(debug.Stack()))
			writeErrorResponseWithCode(w, http.StatusInternalServerError, dto.ErrorCodeInternal, "Internal server error", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests over their tier budget with 429.
func rateLimit(c *ratelimit.Config) func(http.Handler) http.Handler {
	return ratelimit.Middleware(c, func(w http.ResponseWriter, r *http.Request, result ratelimit.Result) {
		writeError(r.Context(), w, dto.RateLimitExceeded(int(result.RetryAfter.Seconds())), dto.ErrorCodeRateLimitExceeded, http.StatusTooManyRequests)
	})
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

var (
	errUnauthorized   = errors.New("missing authorization header")
	errInvalidAuthHdr = errors.New("invalid authorization header")
	errInvalidToken   = errors.New("invalid token")
)

// requireWriteAuth rejects mutating requests without a valid HS256 bearer
// token signed with secret. Read requests pass through.
func requireWriteAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			sub, err := validateJWT(r, secret)
			if err != nil {
				writeError(r.Context(), w, dto.Unauthorized("Unauthorized: "+err.Error()), dto.ErrorCodeUnauthorized, http.StatusUnauthorized)
				return
			}
			slog.DebugContext(r.Context(), "Authorized write", "sub", sub)
			next.ServeHTTP(w, r)
		})
	}
}

// validateJWT extracts and validates the bearer token of r. It returns the
// token subject.
func validateJWT(r *http.Request, secret []byte) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errUnauthorized
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return "", errInvalidAuthHdr
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

// NewToken returns an HS256 token for subject valid for ttl.
func NewToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        ksid.NewID().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// chain applies middlewares so that the first one is the outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
