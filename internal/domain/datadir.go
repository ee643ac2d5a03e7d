package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// DataDir returns the credential cache directory for an account. Names that
// normalize to the same string still get distinct directories through the
// hash suffix.
func DataDir(root, accountName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(accountName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	sum := sha1.Sum([]byte(accountName))
	return filepath.Join(root, b.String()+"-"+hex.EncodeToString(sum[:4]))
}
