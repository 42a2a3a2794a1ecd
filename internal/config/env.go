package config

import "os"

// Env looks up an environment variable. Evaluations take it explicitly so
// tests never depend on the process environment.
type Env func(key string) (string, bool)

// OSEnv reads the process environment.
func OSEnv() Env { return os.LookupEnv }

// MapEnv serves lookups from a fixed map.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Get returns the value for key, or "" when unset or e is nil.
func (e Env) Get(key string) string {
	if e == nil {
		return ""
	}
	v, _ := e(key)
	return v
}
