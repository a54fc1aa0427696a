package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

// SelectorWire decodes the JSON-compatible event selector grammar: the
// string "*", a single type string, an array of type strings, or
// {include: "*" | string[], exclude?: string[]}.
type SelectorWire struct {
	Selector plugin.Selector
}

type includeExcludeWire struct {
	Include json.RawMessage `json:"include"`
	Exclude []string        `json:"exclude,omitempty"`
}

func (w *SelectorWire) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString == "*" {
			w.Selector = plugin.Wildcard()
		} else {
			w.Selector = plugin.SingleType(asString)
		}
		return nil
	}

	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		w.Selector = plugin.TypeList(asList...)
		return nil
	}

	var asObject includeExcludeWire
	if err := json.Unmarshal(data, &asObject); err == nil && asObject.Include != nil {
		var includeAll bool
		var includeList []string
		var includeStr string
		if err := json.Unmarshal(asObject.Include, &includeStr); err == nil {
			includeAll = includeStr == "*"
		} else if err := json.Unmarshal(asObject.Include, &includeList); err == nil {
			// includeList already populated
		} else {
			return fmt.Errorf("rpc: selector.include must be \"*\" or a string array")
		}
		w.Selector = plugin.IncludeExclude(includeAll, includeList, asObject.Exclude)
		return nil
	}

	return fmt.Errorf("rpc: selector must be \"*\", a string, a string array, or {include, exclude}")
}

func (w SelectorWire) MarshalJSON() ([]byte, error) {
	switch w.Selector.Kind {
	case plugin.SelectorAll:
		return json.Marshal("*")
	case plugin.SelectorTypes:
		if len(w.Selector.Types) == 1 {
			return json.Marshal(w.Selector.Types[0])
		}
		return json.Marshal(w.Selector.Types)
	case plugin.SelectorIncludeExclude:
		obj := struct {
			Include any      `json:"include"`
			Exclude []string `json:"exclude,omitempty"`
		}{Exclude: w.Selector.Exclude}
		if w.Selector.IncludeAll {
			obj.Include = "*"
		} else {
			obj.Include = w.Selector.Include
		}
		return json.Marshal(obj)
	default:
		return json.Marshal("*")
	}
}
