package hugorm

import (
	"strings"
)

// find looks up key (split on the registry's key delimiter) in the
// merged config tree. flagDefault is accepted for parity with the
// lookup's other callers but currently has no effect — there's no
// flag source with its own default layer yet.
func (h *Hugorm) find(key string, flagDefault bool) interface{} {
	key = h.realKey(key)
	path := strings.Split(key, h.keyDelim)
	return searchMap(h.Config(), path)
}
