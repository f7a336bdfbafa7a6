package hugorm

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// FlagValue is an interface that users can implement to bind
// different flag implementations to a Hugorm instance.
type FlagValue interface {
	Name() string
	ValueString() string
	ValueType() string
}

// FlagValueSet is an interface that users can implement to bind a
// whole set of flags to a Hugorm instance.
type FlagValueSet interface {
	VisitAll(fn func(FlagValue))
}

// FlagValueWithExplicit is a FlagValue that can report whether it was
// actually set on the command line, as opposed to merely holding its
// zero-value default. A flag that implements it is only merged into
// the configuration when ExplicitlyGiven reports true — otherwise an
// unset flag's zero value would always shadow config file and
// environment values.
type FlagValueWithExplicit interface {
	FlagValue
	ExplicitlyGiven() bool
}

// BindFlagValue binds a specific key to a FlagValue.
func BindFlagValue(key string, flag FlagValue) error { return hg.BindFlagValue(key, flag) }

func (h *Hugorm) BindFlagValue(key string, flag FlagValue) error {
	if flag == nil {
		return fmt.Errorf("flag for %q is nil", key)
	}
	h.pflags[h.casing(key)] = flag
	h.invalidateCache()
	return nil
}

// BindFlagValues binds a full FlagValue set to the configuration,
// using each flag's long name as the config key.
func BindFlagValues(flags FlagValueSet) error { return hg.BindFlagValues(flags) }

func (h *Hugorm) BindFlagValues(flags FlagValueSet) (err error) {
	flags.VisitAll(func(flag FlagValue) {
		if err == nil {
			err = h.BindFlagValue(flag.Name(), flag)
		}
	})
	return err
}

func (h *Hugorm) flagBindings2configMap(bindings map[string]FlagValue) map[string]interface{} {
	result := make(map[string]interface{})

	for key, flag := range bindings {
		if explicit, ok := flag.(FlagValueWithExplicit); ok && !explicit.ExplicitlyGiven() {
			continue
		}

		path := strings.Split(key, h.keyDelim)

		var val interface{}
		switch flag.ValueType() {
		case "int", "int8", "int16", "int32", "int64",
			"uint", "uint8", "uint16", "uint32", "uint64":
			val = cast.ToInt(flag.ValueString())
		case "bool":
			val = cast.ToBool(flag.ValueString())
		case "stringSlice":
			s := strings.TrimPrefix(flag.ValueString(), "[")
			s = strings.TrimSuffix(s, "]")
			elems, _ := readAsCSV(s)
			val = elems
		case "intSlice":
			s := strings.TrimPrefix(flag.ValueString(), "[")
			s = strings.TrimSuffix(s, "]")
			elems, _ := readAsCSV(s)
			val = cast.ToIntSlice(elems)
		case "stringToString":
			val = stringToStringConv(flag.ValueString())
		default:
			val = flag.ValueString()
		}
		setKeyInMap(result, path, val)
	}
	return result
}
