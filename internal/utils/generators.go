package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateOrderID returns the public identifier of a boost order.
func GenerateOrderID() string {
	return uuid.NewString()
}

// GenerateReference builds a prefixed opaque reference such as "sim_3f2a...".
func GenerateReference(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
