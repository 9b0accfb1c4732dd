package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/contextawareid/identity-core/internal/infrastructure/logging"
)

// seedPasswordBytes is the number of random bytes for the seed developer password.
const seedPasswordBytes = 16

// SeedDeveloper creates the initial Developer account on first boot if no
// identities exist. Without it the admin surface (role changes, session
// revocation) would be unreachable on a fresh install.
// The generated password is logged once and must be changed immediately.
// Returns the generated password (empty string if seeding was skipped).
func SeedDeveloper(ctx context.Context, users UserRepository, logger *logging.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking identity count: %w", err)
	}

	if count > 0 {
		logger.Info("identities exist, skipping developer seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	dev := &Identity{
		Username:     "developer",
		PasswordHash: hash,
		Role:         RoleDeveloper,
	}

	if err := users.Create(ctx, dev); err != nil {
		return "", fmt.Errorf("creating seed developer: %w", err)
	}

	logger.Warn("seed developer account created",
		"username", "developer",
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
