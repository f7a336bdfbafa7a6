package hugorm

import (
	"github.com/mitchellh/mapstructure"
)

// UnmarshalKey decodes the value stored under key into rawVal, a
// pointer to a struct (or map, slice, etc.) tagged for mapstructure.
func UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return hg.UnmarshalKey(key, rawVal, opts...)
}

func (h *Hugorm) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return decode(h.Get(key), defaultDecoderConfig(rawVal, opts...))
}

// DecoderConfigOption customizes the mapstructure.DecoderConfig used
// to decode a value passed to UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// DecodeHook overrides the default DecoderConfig.DecodeHook, which
// composes mapstructure.StringToTimeDurationHookFunc and
// mapstructure.StringToSliceHookFunc(",").
func DecodeHook(hook mapstructure.DecodeHookFunc) DecoderConfigOption {
	return func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = hook
	}
}

func defaultDecoderConfig(output interface{}, opts ...DecoderConfigOption) *mapstructure.DecoderConfig {
	c := &mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// decode wraps mapstructure.Decode with the package's default
// weakly-typed, duration/slice-aware config.
func decode(input interface{}, config *mapstructure.DecoderConfig) error {
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
