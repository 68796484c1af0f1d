package http_api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/coinstore/internal/models"
)

const idempotencyHeader = "Idempotency-Key"

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// idempotent replays the first successful response for a repeated
// Idempotency-Key. A key whose first request is still running answers 409.
// Keys are per caller, so two users cannot collide.
func (s *HTTPServer) idempotent(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := s.services.Idempotency
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if store == nil || key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key = actorFrom(c).UserID + ":" + key

		raw, found, err := store.Recall(ctx, scope, key)
		if err != nil {
			s.logger.Warn("Idempotency store unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if found {
			var resp storedResponse
			if err := json.Unmarshal([]byte(raw), &resp); err == nil {
				c.Header("Idempotent-Replayed", "true")
				c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
				c.Abort()
				return
			}
			s.logger.Warn("Discarding unreadable idempotent response", "scope", scope, "key", key)
		}

		locked, err := store.TryLock(ctx, scope, key)
		if err != nil {
			s.logger.Warn("Idempotency store unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if !locked {
			s.fail(c, models.ErrDuplicateRequest)
			return
		}

		writer := &recordingWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			// failed attempts may be retried with the same key
			if err := store.Unlock(ctx, scope, key); err != nil {
				s.logger.Warn("Failed to release idempotency key", "scope", scope, "key", key, "error", err)
			}
			return
		}
		encoded, err := json.Marshal(storedResponse{Status: status, Body: writer.buf.Bytes()})
		if err == nil {
			err = store.Remember(ctx, scope, key, string(encoded))
		}
		if err != nil {
			s.logger.Warn("Failed to remember idempotent response", "scope", scope, "key", key, "error", err)
		}
	}
}
