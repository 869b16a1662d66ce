package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"gigescrow/internal/idempotency"
)

const (
	// IdempotencyHeader carries the client key that makes a repeated POST a replay.
	IdempotencyHeader = "X-Idempotency-Key"
	replayedHeader    = "X-Idempotency-Replayed"
	maxKeyLength      = 255
)

// idempotent runs a handler at most once per key, method and path. Repeats
// get the stored response; a repeat that arrives while the first request is
// still running gets 409. Server errors release the key so the request can
// be sent again.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" {
			writeError(w, http.StatusBadRequest, "missing "+IdempotencyHeader+" header")
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, IdempotencyHeader+" is too long")
			return
		}

		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := r.Context()
		log := s.log.WithField("request_id", chimw.GetReqID(ctx))
		claim, replay, err := s.idempotency.Begin(ctx, r.Method+" "+r.URL.Path, key, body)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			log.WithError(err).Error("Idempotency lookup failed")
			writeError(w, http.StatusInternalServerError, "idempotency store unavailable")
			return
		case replay != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(replay.StatusCode)
			_, _ = w.Write(replay.Response)
			s.metrics.incPurchase("replayed")
			return
		}

		var captured bytes.Buffer
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&captured)
		next.ServeHTTP(ww, r)

		// the response is already sent; the record must outlive the request
		storeCtx := context.WithoutCancel(ctx)
		if ww.Status() >= http.StatusInternalServerError {
			err = claim.Release(storeCtx)
		} else {
			err = claim.Complete(storeCtx, ww.Status(), captured.Bytes())
		}
		if err != nil {
			log.WithError(err).Warn("Could not store idempotent response")
		}
	})
}
