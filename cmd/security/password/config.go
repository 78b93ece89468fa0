package password

import (
	"fmt"
	"runtime"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds acceptable passwords. Lengths are counted in runes.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login costs and an 8..256 rune policy.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// Check validates externally supplied settings (config files, env) against hard bounds.
func (c Config) Check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("argon2 memory_kib out of range [%d..%d]", 8*1024, 1024*1024)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("argon2 iterations out of range [1..20]")
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("argon2 parallelism out of range [1..64]")
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("argon2 salt_len out of range [8..64]")
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("argon2 key_len out of range [16..64]")
	}

	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("password policy lengths out of range [1..4096]")
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
