package cache

import (
	"fmt"
	"strings"
)

const keyPrefix = "wallettx"

type EntityType string

const EntityAccount EntityType = "account"

type KeyType string

const KeyIdentity KeyType = "identity"

// GenerateKey creates a standardized cache key
func GenerateKey(entity EntityType, keyType KeyType, value interface{}) string {
	return fmt.Sprintf("%s:%s:%s:%v", keyPrefix, entity, keyType, value)
}

// ParseKey splits a key built by GenerateKey. ok is false for foreign keys.
// The value may itself contain colons.
func ParseKey(key string) (entity EntityType, keyType KeyType, value string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != keyPrefix {
		return "", "", "", false
	}
	return EntityType(parts[1]), KeyType(parts[2]), parts[3], true
}
