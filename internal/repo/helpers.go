package repo

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// fromNullString разворачивает nullable-строку.
func fromNullString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fromNullUUID разворачивает nullable UUID.
func fromNullUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// jsonb сериализует значение для колонки jsonb.
func jsonb(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return b, nil
}

// rawJSON возвращает nil для пустого json.RawMessage.
func rawJSON(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return m
}
