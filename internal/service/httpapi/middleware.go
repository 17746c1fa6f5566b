package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
)

// requestLogger пишет одну строку лога на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
				"remote_addr": r.RemoteAddr,
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request")
				return
			}
			entry.Debug("http request")
		})
	}
}

// responseRecorder дублирует ответ в буфер для сохранения по ключу идемпотентности.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// idempotent повторяет сохранённый ответ для уже обработанного Idempotency-Key.
// Без заголовка или без guard запрос проходит как есть.
func idempotent(guard *idempotency.Guard, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if guard == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, badRequest("invalid request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := idempotency.RequestHash(r.Method, r.URL.Path, string(body))
			replay, err := guard.Begin(r.Context(), key, hash, checkoutUserID(body))
			if err != nil {
				status, resp := errorFromDomain(err)
				if status == http.StatusInternalServerError {
					logger.WithError(err).WithField("idempotency_key", key).Error("idempotency begin failed")
				}
				writeJSON(w, status, resp)
				return
			}
			if replay != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				if replay.OrderID != "" {
					w.Header().Set(OrderIDHeader, replay.OrderID)
				}
				w.WriteHeader(replay.HTTPStatus)
				_, _ = w.Write(replay.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w}
			completeCtx := context.WithoutCancel(r.Context())
			defer func() {
				if p := recover(); p != nil {
					// Ключ не должен остаться в processing до истечения TTL.
					body, _ := json.Marshal(ErrorResponse{Kind: KindInternal, Message: "internal server error"})
					guard.Complete(completeCtx, key, http.StatusInternalServerError, body)
					panic(p)
				}
			}()

			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			guard.Complete(completeCtx, key, rec.status, rec.body.Bytes())
		})
	}
}

// checkoutUserID достаёт userId из тела оформления; 0, если тело не разобрано.
func checkoutUserID(body []byte) int64 {
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return 0
	}
	return req.UserID
}
