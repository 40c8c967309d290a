package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Lookup fetches a raw variable; os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// env reads typed values through a Lookup and collects every problem so
// a single Parse reports all bad variables at once.
type env struct {
	lookup Lookup
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

// must records an error for unset or empty required variables.
func (e *env) must(key string) string {
	v, ok := e.raw(key)
	if !ok {
		e.errs = append(e.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (e *env) intVal(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return def
	}
	return n
}

func (e *env) boolVal(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("invalid bool for %s: %q", key, v))
	return def
}

func (e *env) durVal(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return def
	}
	return d
}

// list splits a comma separated value, dropping blanks.
func (e *env) list(key, def string) []string {
	var out []string
	for _, p := range strings.Split(e.str(key, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
