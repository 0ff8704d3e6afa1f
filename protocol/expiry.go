package protocol

import "time"

// Default TTLs by command. Reads are cheap to retry from the client side, so
// they expire sooner than writes.
var defaultTTLs = map[Command]time.Duration{
	FindAllUsers:    10 * time.Second,
	FindOneUser:     10 * time.Second,
	FindAllProducts: 10 * time.Second,
	FindOneProduct:  10 * time.Second,

	CreateUser:         30 * time.Second,
	UpdateUser:         30 * time.Second,
	RemoveUser:         30 * time.Second,
	CreateProduct:      30 * time.Second,
	UpdateProduct:      30 * time.Second,
	UpdateProductStock: 30 * time.Second,
	RemoveProduct:      30 * time.Second,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 30 * time.Second

// ReplyTTL bounds how long a reply stays deliverable.
const ReplyTTL = time.Minute

// DefaultTTLFor returns the default TTL for a command.
func DefaultTTLFor(cmd Command) time.Duration {
	if ttl, ok := defaultTTLs[cmd]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
