package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultIdempotencyTTL применяется, когда хранилищу не передали срок жизни ключа.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus - стадия обработки запроса, пришедшего с ключом.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// Valid сообщает, знает ли сервис такую стадию.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s.Settled()
}

// Settled истинно для стадий, у которых уже есть сохранённый ответ.
func (s IdempotencyStatus) Settled() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// ParseIdempotencyStatus разбирает значение, прочитанное из хранилища.
func ParseIdempotencyStatus(raw string) (IdempotencyStatus, error) {
	status := IdempotencyStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("unknown idempotency status %q", raw)
	}
	return status, nil
}

// IdempotencyRecord - запомненный результат создания заказа по ключу клиента.
// StatusCode хранит код того транспорта, через который пришёл запрос.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	StatusCode   int
	ResponseBody []byte
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewIdempotencyRecord готовит запись в стадии processing.
// Пустой ключ или отпечаток запроса отклоняются, нулевой ttlAt заменяется на now+DefaultIdempotencyTTL.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Conflict сравнивает повторный запрос с уже сохранённой записью.
func (r IdempotencyRecord) Conflict(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Expired истинно, если ключ можно удалить к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Clone копирует запись вместе с телом ответа.
func (r IdempotencyRecord) Clone() IdempotencyRecord {
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return r
}
