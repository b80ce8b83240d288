package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrUnserializableKey is returned when cache key arguments cannot be
// serialized deterministically.
var ErrUnserializableKey = errors.New("cache key arguments are not serializable")

// Keyer is implemented by arguments that provide their own stable cache key.
// Key uses CacheKey instead of serializing the value.
type Keyer interface {
	CacheKey() string
}

// keyedArg stands in for a Keyer argument in the serialized key material
type keyedArg struct {
	Key string `json:"k"`
}

// Key derives a deterministic cache key for a computation named prefix
// called with positional args and keyword kwargs. Positional arguments keep
// their order; keyword arguments are serialized sorted by name. The key is
// prefix followed by the hex BLAKE2b-256 digest of the serialized arguments.
func Key(prefix string, args []any, kwargs map[string]any) (string, error) {
	material := struct {
		Name   string         `json:"name"`
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}{
		Name:   prefix,
		Args:   make([]any, len(args)),
		Kwargs: make(map[string]any, len(kwargs)),
	}
	for i, arg := range args {
		material.Args[i] = keyable(arg)
	}
	for name, arg := range kwargs {
		material.Kwargs[name] = keyable(arg)
	}

	// encoding/json writes map keys in sorted order
	b, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnserializableKey, err)
	}

	sum := blake2b.Sum256(b)
	return prefix + ":" + hex.EncodeToString(sum[:]), nil
}

func keyable(arg any) any {
	if k, ok := arg.(Keyer); ok {
		return keyedArg{Key: k.CacheKey()}
	}
	return arg
}
