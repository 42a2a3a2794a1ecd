// Package hashing provides deterministic JSON canonicalization and SHA-256
// fingerprints used for capability, ruleset, and activation hashes.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the canonical JSON form of v.
//
// Every string (keys included) has CRLF and lone CR normalized to LF, map keys
// are sorted, and separators are compact. Struct json tags are honored because
// v is marshaled with encoding/json before canonicalization.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}

	clean, err := normalizeNewlines(generic)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	normalized, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: re-marshal: %w", err)
	}

	out, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs: %w", err)
	}
	return out, nil
}

// Hash returns the hex SHA-256 of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// MustHash is Hash for inputs built entirely from maps, slices, strings,
// numbers and booleans whose keys carry no carriage returns, which cannot fail.
func MustHash(v any) string {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}

// ShortHash returns the first n hex characters of Hash(v).
func ShortHash(v any, n int) (string, error) {
	h, err := Hash(v)
	if err != nil {
		return "", err
	}
	return Truncate(h, n), nil
}

// HashBytes computes the SHA-256 of data as a hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is HashBytes for a string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// Truncate shortens a hex digest to n characters. n <= 0 keeps the full digest.
func Truncate(h string, n int) string {
	if n <= 0 || n >= len(h) {
		return h
	}
	return h[:n]
}

// NormalizeNewlines rewrites CRLF and lone CR to LF.
func NormalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// normalizeNewlines rewrites every string, map keys included. Two keys that
// become equal after normalization are an error.
func normalizeNewlines(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return NormalizeNewlines(t), nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			n, err := normalizeNewlines(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(t))
		origin := make(map[string]string, len(t))
		for _, k := range keys {
			nk := NormalizeNewlines(k)
			if prev, dup := origin[nk]; dup {
				return nil, fmt.Errorf("keys %q and %q collide after newline normalization", prev, k)
			}
			origin[nk] = k
			n, err := normalizeNewlines(t[k])
			if err != nil {
				return nil, err
			}
			out[nk] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
