package redis

import "fmt"

const (
	// KeyPrefixEvents is the prefix for per-service event lists
	KeyPrefixEvents = "voicectl:events:"
	// KeyPrefixHealth is the prefix for the latest health result of a service
	KeyPrefixHealth = "voicectl:health:"
)

// EventsKey returns the Redis key holding the event journal of a service
func EventsKey(service string) string {
	return KeyPrefixEvents + service
}

// HealthKey returns the Redis key holding the latest health result of a service
func HealthKey(service string) string {
	return KeyPrefixHealth + service
}

// ExtractService extracts the service name from an events or health key
func ExtractService(key string) (string, error) {
	for _, prefix := range []string{KeyPrefixEvents, KeyPrefixHealth} {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return key[len(prefix):], nil
		}
	}
	return "", fmt.Errorf("invalid voicectl key: %s", key)
}
