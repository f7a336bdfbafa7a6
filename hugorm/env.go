package hugorm

import (
	"fmt"
	"os"
	"strings"
)

// AutomaticEnv makes Hugorm check if environment variables match any of the existing keys
// (config, default or explicitly bound env). Flag keys are not considered.
// If matching env vars are found, they are loaded into Hugorm.
func AutomaticEnv() { hg.AutomaticEnv() }

func (h *Hugorm) AutomaticEnv() {
	h.automaticEnvApplied = true
}

// SetEnvKeyReplacer sets the strings.Replacer.
// Useful for mapping an environmental variable to a key that does
// not match it.
func SetEnvKeyReplacer(r *strings.Replacer) { hg.SetEnvKeyReplacer(r) }

func (h *Hugorm) SetEnvKeyReplacer(r *strings.Replacer) {
	h.envKeyReplacer = r
}

// BindEnv binds a Hugorm key to a ENV variable.
// ENV variables are case sensitive.
// If only a key is provided, it will use the env key matching the key, uppercased.
// If more arguments are provided, they will represent the env variable names that
// should bind to this key and will be taken in the specified order.
// EnvPrefix will be used when set when env name is not provided.
func BindEnv(input ...string) error { return hg.BindEnv(input...) }

func (h *Hugorm) BindEnv(input ...string) error {
	if len(input) == 0 {
		return fmt.Errorf("missing key to bind to")
	}

	key := h.casing(input[0])

	if len(input) == 1 {
		// Only key provided, convert it to an ENV var name
		h.env[key] = append(h.env[key], h.withEnvPrefix(key))
	} else {
		// Take the provided names verbatim.
		h.env[key] = append(h.env[key], input[1:]...)
	}

	return nil
}

func (h *Hugorm) withEnvPrefix(in string) string {
	if h.envPrefix != "" {
		return strings.ToUpper(h.envPrefix + "_" + in)
	}

	return strings.ToUpper(in)
}

// getEnv is a wrapper around os.Getenv which replaces characters in the original
// key. This allows env vars which have different keys than the config object
// keys.
func (h *Hugorm) getEnv(key string) (string, bool) {
	if h.envKeyReplacer != nil {
		key = h.envKeyReplacer.Replace(key)
	}

	val, ok := os.LookupEnv(key)

	return val, ok && (h.allowEmptyEnv || val != "")
}

// AllowEmptyEnv tells Hugorm to consider set,
// but empty environment variables as valid values instead of falling back.
// For backward compatibility reasons this is false by default.
func AllowEmptyEnv(allowEmptyEnv bool) { hg.AllowEmptyEnv(allowEmptyEnv) }

func (h *Hugorm) AllowEmptyEnv(allowEmptyEnv bool) {
	h.allowEmptyEnv = allowEmptyEnv
}

// automaticEnvConfigMap walks every leaf key already known from
// defaults/sources and checks whether the corresponding environment
// variable (the key, dots replaced per envKeyReplacer if set,
// upper-cased, and prefixed) is set.
func (h *Hugorm) automaticEnvConfigMap(known map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	h.walkLeaves(known, nil, func(path []string) {
		key := strings.Join(path, h.keyDelim)
		if val, ok := h.getEnv(h.withEnvPrefix(key)); ok {
			setKeyInMap(result, path, val)
		}
	})
	return result
}

func (h *Hugorm) walkLeaves(m map[string]interface{}, prefix []string, visit func(path []string)) {
	for k, v := range m {
		path := append(append([]string{}, prefix...), k)
		if nested, ok := normalizeMap(v); ok {
			h.walkLeaves(nested, path, visit)
			continue
		}
		visit(path)
	}
}

// envBindings2configMap resolves every key bound via BindEnv against
// the current environment, in the order its env var names were given,
// taking the first one that is set.
func (h *Hugorm) envBindings2configMap(bindings map[string][]string) map[string]interface{} {
	result := make(map[string]interface{})
	for key, names := range bindings {
		for _, name := range names {
			val, ok := h.getEnv(name)
			if !ok {
				continue
			}
			path := strings.Split(key, h.keyDelim)
			setKeyInMap(result, path, val)
			break
		}
	}
	return result
}
