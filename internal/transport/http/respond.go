package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chronotech-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var statusByCode = map[domain.Code]int{
	domain.CodeUnauthenticated:  http.StatusUnauthorized,
	domain.CodePermissionDenied: http.StatusForbidden,
	domain.CodeInvalidArgument:  http.StatusBadRequest,
	domain.CodeNotFound:         http.StatusNotFound,
	domain.CodeOutOfRange:       http.StatusBadRequest,
	domain.CodeConflict:         http.StatusConflict,
	domain.CodeInternal:         http.StatusInternalServerError,
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Status  domain.Code `json:"status"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its wire code. Internal details are logged, never sent.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := domain.CodeOf(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, statusByCode[code], errorBody{Error: errorDetail{Status: code, Message: msg}})
}

// decode reads a JSON body into dst and runs its validate tags.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Errorf(domain.ErrInvalidArgument, "malformed request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.Errorf(domain.ErrInvalidArgument, "field %s must satisfy %s", verrs[0].Field(), verrs[0].Tag())
		}
		return domain.Errorf(domain.ErrInvalidArgument, "invalid request")
	}
	return nil
}
