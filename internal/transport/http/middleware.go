package httptransport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Заголовки, которые выставляет слой аутентификации перед сервисом.
const (
	HeaderActorID        = "X-Actor-ID"
	HeaderActorRole      = "X-Actor-Role"
	HeaderSessionID      = "X-Session-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

const tracerName = "github.com/vladislavdragonenkov/marketplace/internal/transport/http"

type ctxKey int

const (
	actorKey ctxKey = iota
	sessionKey
)

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey).(domain.Actor)
	return actor
}

func sessionFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionKey).(string)
	return sid
}

// identity читает актора и сессию из заголовков. Без актора запрос не пропускается.
func (h *Handler) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderActorID))
		role, ok := domain.ParseRole(r.Header.Get(HeaderActorRole))
		if id == "" || !ok {
			writeError(w, r, h.logger, errUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, domain.Actor{ID: id, Role: role, Authenticated: true})
		if sid := strings.TrimSpace(r.Header.Get(HeaderSessionID)); sid != "" {
			ctx = context.WithValue(ctx, sessionKey, sid)
		}
		trace.SpanFromContext(ctx).SetAttributes(semconv.EnduserIDKey.String(id), semconv.EnduserRoleKey.String(string(role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole пропускает только актора с заданной ролью.
func (h *Handler) requireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !actorFrom(r.Context()).Is(role) {
				writeError(w, r, h.logger, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireSession требует X-Session-ID открытой сессии и проверяет, что корзина принадлежит актору.
// Завершённая или неизвестная сессия даёт 401 session_expired.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := sessionFrom(r.Context())
		if sid == "" {
			writeError(w, r, h.logger, errSessionRequired)
			return
		}
		cart, err := h.carts.Get(r.Context(), sid)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if cart.ActorID == "" || cart.ActorID != actorFrom(r.Context()).ID {
			writeError(w, r, h.logger, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog пишет строку лога на каждый запрос через logrus.
func accessLog(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := requestLogger(r, logger).WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				entry.Error("http request")
			case ww.Status() >= http.StatusBadRequest:
				entry.Warn("http request")
			default:
				entry.Info("http request")
			}
		})
	}
}

// requestLogger добавляет к логгеру request_id от chi.
func requestLogger(r *http.Request, logger *log.Entry) *log.Entry {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		return logger.WithField("request_id", reqID)
	}
	return logger
}

// tracing открывает серверный span на запрос, продолжая W3C контекст клиента.
func tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(r.Method),
				semconv.HTTPTargetKey.String(r.URL.Path),
				semconv.HTTPURLKey.String(r.URL.String()),
				semconv.NetHostNameKey.String(r.Host),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if pattern := chi.RouteContext(ctx); pattern != nil && pattern.RoutePattern() != "" {
			span.SetName(r.Method + " " + pattern.RoutePattern())
			span.SetAttributes(semconv.HTTPRouteKey.String(pattern.RoutePattern()))
		}
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}
