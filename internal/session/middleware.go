package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contextKey struct{}

// GinContextKey is the gin.Context key holding the request's session.
const GinContextKey = "session"

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext returns the session opened by the middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

// FromGin returns the session opened by Store.Gin, or nil.
func FromGin(c *gin.Context) *Session {
	if v, ok := c.Get(GinContextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return FromContext(c.Request.Context())
}

// commit saves sess once. The context is detached from the request so a
// client that hangs up does not cancel the write.
func (s *Store) commit(ctx context.Context, w http.ResponseWriter, sess *Session) {
	if err := s.Save(context.WithoutCancel(ctx), w, sess); err != nil {
		s.logger.Warn("Failed to save session", zap.Error(err))
	}
}

// Middleware opens the session before next runs and saves it before the
// first byte of the response header is written, or after next returns if
// next writes nothing.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) != nil {
			panic(ErrNestedMiddleware)
		}

		sess := s.Open(r.Context(), r)
		ctx := NewContext(r.Context(), sess)

		cw := &commitWriter{ResponseWriter: w}
		cw.commit = func() { s.commit(ctx, w, sess) }

		next.ServeHTTP(cw, r.WithContext(ctx))
		cw.flushCommit()
	})
}

// commitWriter runs commit before anything reaches the client.
type commitWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *commitWriter) flushCommit() {
	w.once.Do(w.commit)
}

func (w *commitWriter) WriteHeader(code int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Flush() {
	w.flushCommit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Gin is the gin form of Middleware. The session is available through
// FromGin and, for code holding only the request, FromContext.
func (s *Store) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(GinContextKey); exists || FromContext(c.Request.Context()) != nil {
			panic(ErrNestedMiddleware)
		}

		sess := s.Open(c.Request.Context(), c.Request)
		ctx := NewContext(c.Request.Context(), sess)
		c.Request = c.Request.WithContext(ctx)
		c.Set(GinContextKey, sess)

		underlying := c.Writer
		gw := &ginCommitWriter{ResponseWriter: underlying}
		gw.commit = func() { s.commit(ctx, underlying, sess) }
		c.Writer = gw

		c.Next()
		gw.flushCommit()
	}
}

// ginCommitWriter is commitWriter for gin.ResponseWriter. gin defers the
// real header write, so the hooks also cover WriteHeaderNow and WriteString.
type ginCommitWriter struct {
	gin.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *ginCommitWriter) flushCommit() {
	w.once.Do(w.commit)
}

func (w *ginCommitWriter) WriteHeader(code int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *ginCommitWriter) WriteHeaderNow() {
	w.flushCommit()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *ginCommitWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

func (w *ginCommitWriter) WriteString(str string) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.WriteString(str)
}

func (w *ginCommitWriter) Flush() {
	w.flushCommit()
	w.ResponseWriter.Flush()
}
