package repo

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cursor is the keyset position for artifact listings: the creation instant
// and id of the last row already returned. Ordering is newest first, so every
// row after the cursor sorts strictly earlier; rows inserted later sort
// before it and can never shift an existing page.
type cursor struct {
	createdAt time.Time
	id        string
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, fmt.Errorf("invalid page token")
	}
	nanos, id, found := strings.Cut(string(raw), "|")
	if !found || id == "" {
		return cursor{}, fmt.Errorf("invalid page token")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return cursor{}, fmt.Errorf("invalid page token")
	}
	return cursor{createdAt: time.Unix(0, n), id: id}, nil
}

// after reports whether a row at (createdAt, id) comes after the cursor in
// newest-first order.
func (c cursor) after(createdAt time.Time, id string) bool {
	if createdAt.Before(c.createdAt) {
		return true
	}
	return createdAt.Equal(c.createdAt) && id < c.id
}
