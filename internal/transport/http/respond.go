package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

var (
	errUnauthenticated = errors.New("actor identity is missing or invalid")
	errSessionRequired = errors.New("session id is required")
	errMalformedBody   = errors.New("malformed request body")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// В ошибках валидации используем имена полей из JSON.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// classify сопоставляет ошибку ядра с HTTP-статусом и телом ответа.
func classify(err error) (int, errorBody) {
	detail := errorDetail{Message: err.Error()}
	status := http.StatusInternalServerError

	var (
		stockExceeded *domain.StockExceededError
		insufficient  *domain.InsufficientStockError
		unavailable   *domain.ProductUnavailableError
		invalid       *domain.ValidationError
	)

	switch {
	case errors.Is(err, errUnauthenticated), errors.Is(err, errSessionRequired):
		status, detail.Code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domain.ErrSessionExpired):
		status, detail.Code = http.StatusUnauthorized, "session_expired"
	case errors.Is(err, errMalformedBody):
		status, detail.Code = http.StatusBadRequest, "malformed_request"
	case errors.As(err, &stockExceeded):
		status, detail.Code = http.StatusConflict, "stock_exceeded"
		detail.ProductID = stockExceeded.ProductID
		detail.Available = &stockExceeded.Available
	case errors.As(err, &insufficient):
		status, detail.Code = http.StatusConflict, "insufficient_stock"
		detail.ProductID = insufficient.ProductID
		detail.Available = &insufficient.Available
	case errors.As(err, &unavailable):
		status, detail.Code = http.StatusConflict, "product_unavailable"
		detail.ProductID = unavailable.ProductID
	case errors.Is(err, domain.ErrOutOfStock):
		status, detail.Code = http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrProductGone):
		status, detail.Code = http.StatusConflict, "product_gone"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, detail.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		status, detail.Code = http.StatusConflict, "idempotency_key_reused"
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		status, detail.Code = http.StatusConflict, "request_in_progress"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, detail.Code = http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrForbidden):
		status, detail.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, detail.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidStatus):
		status, detail.Code = http.StatusUnprocessableEntity, "invalid_status"
	case errors.Is(err, domain.ErrCartEmpty):
		status, detail.Code = http.StatusUnprocessableEntity, "cart_empty"
	case errors.As(err, &invalid):
		status, detail.Code = http.StatusUnprocessableEntity, "validation_failed"
		detail.Field = invalid.Field
	case errors.Is(err, domain.ErrValidation):
		status, detail.Code = http.StatusUnprocessableEntity, "validation_failed"
	default:
		detail.Code = "internal"
		detail.Message = http.StatusText(http.StatusInternalServerError)
	}
	return status, errorBody{Error: detail}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError пишет ошибку; внутренние ошибки логируются, клиенту уходит общий текст.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		requestLogger(r, logger).WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

// readBody читает тело целиком: оно нужно и для декодирования, и для хеша идемпотентности.
func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return body, nil
}

// decode разбирает JSON и прогоняет validator по тегам структуры.
func decode(raw []byte, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty body", errMalformedBody)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return validateStruct(dst)
}

func decodeRequest(r *http.Request, dst any) error {
	raw, err := readBody(r)
	if err != nil {
		return err
	}
	return decode(raw, dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fe.Field(), ruleMessage(fe))
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}
