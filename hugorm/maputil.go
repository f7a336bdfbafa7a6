package hugorm

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// normalizeMap accepts either map[string]interface{} (the shape every
// Go-native source produces) or map[interface{}]interface{} (what
// gopkg.in/yaml.v2 produces for nested maps) and returns the former.
func normalizeMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, vv := range m {
			out[fmt.Sprintf("%v", k)] = vv
		}
		return out, true
	default:
		return nil, false
	}
}

// setKeyInMap sets val at path within m, creating any intermediate
// maps path requires.
func setKeyInMap(m map[string]interface{}, path []string, val interface{}) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		m[path[0]] = val
		return
	}
	next, ok := normalizeMap(m[path[0]])
	if !ok {
		next = make(map[string]interface{})
	}
	m[path[0]] = next
	setKeyInMap(next, path[1:], val)
}

// searchMap reads the value at path within m without mutating it.
func searchMap(m map[string]interface{}, path []string) interface{} {
	if len(path) == 0 {
		return nil
	}
	val, ok := m[path[0]]
	if !ok {
		return nil
	}
	if len(path) == 1 {
		return val
	}
	next, ok := normalizeMap(val)
	if !ok {
		return nil
	}
	return searchMap(next, path[1:])
}

// deepCopyMap recursively copies m, lowercasing keys when
// caseInsensitive is set.
func deepCopyMap(m map[string]interface{}, caseInsensitive bool) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		key := k
		if caseInsensitive {
			key = strings.ToLower(k)
		}
		if nested, ok := normalizeMap(v); ok {
			out[key] = deepCopyMap(nested, caseInsensitive)
			continue
		}
		out[key] = v
	}
	return out
}

// mergeMaps overlays src onto dst in place, recursing into nested
// maps on both sides and otherwise letting src win.
func mergeMaps(dst, src map[string]interface{}) {
	for k, srcVal := range src {
		dstVal, exists := dst[k]
		if !exists {
			dst[k] = srcVal
			continue
		}
		dstMap, dstIsMap := normalizeMap(dstVal)
		srcMap, srcIsMap := normalizeMap(srcVal)
		if dstIsMap && srcIsMap {
			mergeMaps(dstMap, srcMap)
			dst[k] = dstMap
			continue
		}
		dst[k] = srcVal
	}
}

// readAsCSV parses a single comma-separated record, as produced by
// pflag's StringSlice/IntSlice String() methods (e.g. "a,b,c").
func readAsCSV(val string) ([]string, error) {
	if val == "" {
		return []string{}, nil
	}
	r := csv.NewReader(strings.NewReader(val))
	return r.Read()
}

// stringToStringConv parses pflag's StringToString String() format,
// "k1=v1,k2=v2", into a map.
func stringToStringConv(val string) map[string]interface{} {
	val = strings.TrimPrefix(val, "[")
	val = strings.TrimSuffix(val, "]")
	out := make(map[string]interface{})
	if val == "" {
		return out
	}
	for _, pair := range strings.Split(val, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}
