// Package requestid issues correlation ids for inbound requests.
package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Normalize keeps a caller-supplied id when it is usable.
func Normalize(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > 128 || strings.ContainsAny(id, "\r\n") {
		return New()
	}
	return id
}
