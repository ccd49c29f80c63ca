// file: meshd/pkt/params.go
package pkt

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeParams decodes the generic Params map into a typed struct pointed
// to by out, following the teacher's config-loader idiom of decoding loose
// map[string]any payloads with mapstructure rather than hand-rolled type
// assertions.
func DecodeParams(params map[string]any, out any) error {
	if params == nil {
		return fmt.Errorf("pkt: nil params")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("pkt: new decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("pkt: decode params: %w", err)
	}
	return nil
}
