package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode http response")
	}
}

// errorResponse переводит доменную ошибку в HTTP-статус и тело ответа.
// Для внутренних ошибок причина наружу не отдаётся.
func errorResponse(err error) (int, errorBody) {
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound, errorBody{Error: string(kind), Message: err.Error()}
	case domain.KindConflict:
		return http.StatusConflict, errorBody{Error: string(kind), Message: err.Error()}
	case domain.KindValidation:
		return http.StatusBadRequest, errorBody{Error: string(kind), Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: string(domain.KindInternal), Message: domain.ErrInternal.Error()}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

// readBody читает тело запроса целиком с ограничением размера.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.NewValidation("body", "is too large")
		}
		return nil, domain.NewValidation("body", "cannot be read")
	}
	return body, nil
}

func decodeBody(body []byte, dst any) error {
	if len(body) == 0 {
		return domain.NewValidation("body", "is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.NewValidation("body", "is not valid JSON for this resource")
	}
	return nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeBody(body, dst)
}

func validateUUID(field, value string) error {
	if value == "" {
		return domain.NewValidation(field, "is required")
	}
	if _, err := uuid.Parse(value); err != nil {
		return domain.NewValidation(field, "must be a UUID")
	}
	return nil
}

func validateOptionalUUID(field string, value *string) error {
	if value == nil || *value == "" {
		return nil
	}
	return validateUUID(field, *value)
}

// nullable различает отсутствующее поле JSON и явный null.
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// cleared - поле пришло явным null.
func (n nullable[T]) cleared() bool {
	return n.Set && n.Value == nil
}
