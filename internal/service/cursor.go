package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
)

// EncodeCursor renders a message position as "<unix-nanos>.<id>".
func EncodeCursor(c repository.Cursor) string {
	return strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + strconv.FormatUint(uint64(c.ID), 10)
}

func cursorOf(m *models.Message) string {
	return EncodeCursor(repository.Cursor{CreatedAt: m.CreatedAt, ID: m.ID})
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string
// yields nil.
func DecodeCursor(field, raw string) (*repository.Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	nanosPart, idPart, ok := strings.Cut(raw, ".")
	if !ok {
		return nil, invalid(field, "malformed cursor")
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil || nanos < 0 {
		return nil, invalid(field, "malformed cursor")
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return nil, invalid(field, "malformed cursor")
	}
	return &repository.Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: uint(id)}, nil
}
