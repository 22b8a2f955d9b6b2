// Package utils provides small helpers shared by the gateway packages.
package utils

import "strings"

// MaskKey masks a credential for safe logging (first 4 and last 4 chars).
// Client ids and bot tokens must only ever reach the logs through this.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "(empty)"
	}
	if len(key) < 12 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// FirstNonEmpty returns the first argument that is not blank after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
