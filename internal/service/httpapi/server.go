package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
)

const (
	// IdempotencyKeyHeader — заголовок с ключом идемпотентности оформления.
	IdempotencyKeyHeader = "Idempotency-Key"
	// OrderIDHeader возвращается при повторе ответа, если по ключу был создан заказ.
	OrderIDHeader = "X-Order-Id"
)

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Services — прикладные сервисы, которые обслуживает HTTP API.
type Services struct {
	Catalog  *catalog.Service
	Cart     *cart.Service
	Checkout *checkout.Service
	Orders   *orders.Service
	Users    *users.Service
	// Idempotency необязателен: без него Idempotency-Key игнорируется.
	Idempotency *idempotency.Guard
}

// Server — HTTP-транспорт магазина.
type Server struct {
	services Services
	logger   *log.Entry
}

// NewServer создаёт HTTP API.
func NewServer(services Services, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.New().WithField("layer", "http")
	}
	return &Server{services: services, logger: logger}
}

// Router собирает chi-маршруты /api/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Get("/stats", s.productStats)
			r.Get("/{id}", s.getProduct)
			r.Put("/{id}", s.updateProduct)
			r.Delete("/{id}", s.deleteProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Post("/items", s.addCartItem)
			r.Put("/items/{id}", s.updateCartItem)
			r.Delete("/items/{id}", s.removeCartItem)
			r.Get("/users/{userId}", s.getCart)
			r.Delete("/users/{userId}", s.clearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(idempotent(s.services.Idempotency, s.logger)).Post("/checkout", s.checkout)
			r.Get("/users/{userId}", s.listOrders)
			r.Get("/{id}", s.getOrder)
			r.Patch("/{id}/status", s.updateOrderStatus)
			r.Get("/{id}/timeline", s.orderTimeline)
		})
	})

	return r
}

// writeJSON пишет ответ с телом v.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError пишет доменную ошибку; внутренние ошибки логируются с подробностями.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorFromDomain(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
	}
	writeJSON(w, status, body)
}

// decodeJSON читает тело запроса в dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, badRequest(msg))
		return false
	}
	return true
}

// pathID разбирает положительный числовой параметр маршрута.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	return parseID(w, chi.URLParam(r, name), name)
}

func parseID(w http.ResponseWriter, raw, name string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, badRequest(name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
