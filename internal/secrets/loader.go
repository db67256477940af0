// Package secrets resolves connection strings and other credentials that may
// live in a file, an environment variable or the config file itself.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes where a secret may be found. File wins over Env, Env
// wins over Value.
type Source struct {
	// Name is used in error messages.
	Name string
	// Value is an inline value from the config file or a flag.
	Value string
	// Env names an environment variable holding the value.
	Env string
	// File points to a file holding the value, e.g. a mounted secret.
	File string
}

// Load returns the trimmed secret. It fails when no source has a usable value.
func Load(src Source) (string, error) {
	secret, err := Optional(src)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("%s is not configured", name(src))
	}
	return secret, nil
}

// Optional is Load for secrets that may be absent: it returns an empty
// string when nothing is configured. A configured but unreadable or empty
// file is still an error.
func Optional(src Source) (string, error) {
	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name(src), file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name(src), file)
		}
		return secret, nil
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}

	return strings.TrimSpace(src.Value), nil
}

func name(src Source) string {
	if n := strings.TrimSpace(src.Name); n != "" {
		return n
	}
	return "secret"
}
