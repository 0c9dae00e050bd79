// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for unsafe, non-streamed
// routes. A successful response is stored per (user, route, key); a retry
// with the same key and body is answered from the store before the handler
// runs, so it neither repeats the upstream call nor charges quota again.
// Failed responses are never stored, so retrying after an error runs the
// operation again.
package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay is set to "true" on responses served from the store.
const HeaderIdempotentReplay = "Idempotent-Replay"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

// Idempotency messages.
const (
	MsgBadIdempotencyKey = "Idempotency-Key inválida"
	MsgIdempotencyReused = "Idempotency-Key já utilizada com outra requisição"
	MsgIdempotencyBody   = "Corpo da requisição inválido"

	codeIdempotencyReused = "IDEMPOTENCY_KEY_REUSED"
)

// maxStoredBody caps the response size kept for replay.
const maxStoredBody = 256 << 10

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// IdempotencyStore persists replayable results. Lookup returns nil, nil when
// no live result exists.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, route, key string, now time.Time) (*domain.IdempotentResult, error)
	Save(ctx context.Context, rec *domain.IdempotentResult, now time.Time) error
}

// GetIdempotencyKey returns the validated key stashed by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s := asString(v)
	return s, s != ""
}

// IsReplay reports whether the response was served from the store.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// Idempotency replays stored 2xx responses for a repeated Idempotency-Key
// and stores new ones. It must run after AccessGuard, since results are
// scoped to the authenticated user.
//
// Behavior:
//   - No header: no-op.
//   - Malformed key: 400.
//   - Stored result for the same body: replayed, handler skipped.
//   - Stored result for a different body: 422 IDEMPOTENCY_KEY_REUSED.
//   - Store errors: logged; the request runs as if no key was sent.
func Idempotency(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		userID := UserID(c)
		if key == "" || userID == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			deny(c, http.StatusBadRequest, MsgBadIdempotencyKey, "")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			deny(c, http.StatusBadRequest, MsgIdempotencyBody, "")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])

		ctx := c.Request.Context()
		route := c.FullPath()
		lg := LoggerFrom(c)

		rec, err := store.Lookup(ctx, userID, route, key, now().UTC())
		switch {
		case err != nil:
			lg.Warn().Err(err).Str("route", route).Msg("idempotency lookup failed")
		case rec != nil && rec.RequestHash != hash:
			deny(c, http.StatusUnprocessableEntity, MsgIdempotencyReused, codeIdempotencyReused)
			return
		case rec != nil:
			c.Set(ctxKeyIdemReplay, true)
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()
		c.Writer = cw.ResponseWriter

		status := cw.Status()
		if status < 200 || status >= 300 || cw.overflow || c.IsAborted() {
			return
		}
		err = store.Save(context.WithoutCancel(ctx), &domain.IdempotentResult{
			UserID:      userID,
			Route:       route,
			Key:         key,
			RequestHash: hash,
			Status:      status,
			Body:        cw.buf.Bytes(),
		}, now().UTC())
		if err != nil {
			lg.Warn().Err(err).Str("route", route).Msg("idempotency save failed")
		}
	}
}

// captureWriter copies the response body while writing it through.
type captureWriter struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	overflow bool
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.keep(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.keep([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *captureWriter) keep(b []byte) {
	if w.overflow {
		return
	}
	if w.buf.Len()+len(b) > maxStoredBody {
		w.overflow = true
		w.buf.Reset()
		return
	}
	w.buf.Write(b)
}
