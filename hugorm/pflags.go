package hugorm

import (
	"github.com/spf13/pflag"
)

// pflagValue adapts a *pflag.Flag to FlagValueWithExplicit.
type pflagValue struct {
	flag *pflag.Flag
}

func (p pflagValue) Name() string          { return p.flag.Name }
func (p pflagValue) ValueString() string   { return p.flag.Value.String() }
func (p pflagValue) ValueType() string     { return p.flag.Value.Type() }
func (p pflagValue) ExplicitlyGiven() bool { return p.flag.Changed }

// pflagValueSet adapts a *pflag.FlagSet to FlagValueSet.
type pflagValueSet struct {
	flags *pflag.FlagSet
}

func (p pflagValueSet) VisitAll(fn func(FlagValue)) {
	p.flags.VisitAll(func(flag *pflag.Flag) {
		fn(pflagValue{flag})
	})
}

// BindPFlag binds a specific key to a pflag.Flag.
func BindPFlag(key string, flag *pflag.Flag) error { return hg.BindPFlag(key, flag) }

func (h *Hugorm) BindPFlag(key string, flag *pflag.Flag) error {
	return h.BindFlagValue(key, pflagValue{flag})
}

// BindPFlags binds every flag in a flag set, using each flag's long
// name as the config key.
func BindPFlags(flags *pflag.FlagSet) error { return hg.BindPFlags(flags) }

func (h *Hugorm) BindPFlags(flags *pflag.FlagSet) error {
	return h.BindFlagValues(pflagValueSet{flags})
}
