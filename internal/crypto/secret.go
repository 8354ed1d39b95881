package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// SecretBytes: энтропия секрета артефакта.
const SecretBytes = 32

// GenerateSecret возвращает новый случайный секрет в hex (64 символа).
func GenerateSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SecretsEqual сравнивает секреты за постоянное время. Обе стороны сначала
// хешируются, так что время не зависит ни от длины, ни от общего префикса.
// Совпадение только точное: регистр и пробелы значимы.
func SecretsEqual(supplied, stored string) bool {
	if stored == "" {
		return false
	}
	a := blake3.Sum256([]byte(supplied))
	b := blake3.Sum256([]byte(stored))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
