package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env composes the environment handed to every child process.
type Env struct {
	Var   Var  // global variables (K->V)
	UseOS bool // start from the supervisor's own environment
	env   Var  // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var:   make(Var),
		UseOS: true,
	}
}

// FromList builds an Env from "K=V" pairs. Malformed pairs and empty keys are skipped.
func FromList(pairs []string, useOS bool) *Env {
	e := New()
	e.UseOS = useOS
	for _, kv := range pairs {
		if k, v, ok := split(kv); ok {
			e.Set(k, v)
		}
	}
	return e
}

// fromOS caches the current process environment as the base.
func (e *Env) fromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := split(kv); ok {
			base[k] = v
		}
	}
	e.env = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge composes the final environment list applying order:
// base = OS env (cached, only when UseOS)
// then apply global e.Var overrides
// then apply perProc (slice of "K=V") overrides
// Returns the environment slice in "K=V" form, with ${VAR} expansion performed
// using the composed map (simple expansion, no recursion).
func (e *Env) Merge(perProc []string) []string {
	m := make(Var)
	if e.UseOS {
		if e.env == nil {
			e.fromOS()
		}
		for k, v := range e.env {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perProc {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	// expand ${VAR}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		out = append(out, k+"="+v)
	}
	return out
}

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", "", false
	}
	return k, v, true
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
