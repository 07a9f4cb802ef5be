package env

import (
	"os"
	"strings"
)

// Env composes the environment handed to spawned programs.
// Base is the OS environment (captured lazily), overlaid with global
// variables from config and finally per-process overrides.
type Env struct {
	vars map[string]string // global overrides (K->V)
	base map[string]string // cached OS environment
}

func New() *Env {
	return &Env{vars: make(map[string]string)}
}

// NoOS uses an empty base instead of the OS environment.
func (e *Env) NoOS() {
	e.base = make(map[string]string)
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := splitKV(kv); ok {
			base[k] = v
		}
	}
	e.base = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[k] = v
}

// SetAll applies a slice of "K=V" entries as global variables, skipping
// malformed entries.
func (e *Env) SetAll(kvs []string) {
	for _, kv := range kvs {
		if k, v, ok := splitKV(kv); ok {
			e.Set(k, v)
		}
	}
}

// Merge composes the final environment list:
// OS base, then global overrides, then perProc ("K=V") overrides.
// ${VAR} references are expanded against the composed map (single pass,
// no recursion).
func (e *Env) Merge(perProc []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(map[string]string, len(e.base)+len(e.vars)+len(perProc))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for _, kv := range perProc {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func splitKV(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
