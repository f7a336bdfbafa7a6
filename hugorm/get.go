package hugorm

// Get retrieves the value for key from whichever source holds it,
// checking overrides, flags, environment, config sources and defaults
// in that order. Get is case-sensitive for a key unless the
// registry was built with CaseSensitive(false).
//
// It returns an interface{}; callers that need a specific type
// unmarshal the key with UnmarshalKey instead.
func Get(key string) interface{} { return hg.Get(key) }

func (h *Hugorm) Get(key string) interface{} {
	key = h.casing(key)
	return h.find(key, true)
}
