package domain

import "encoding/json"

// NormalizeNumbers turns json.Number values back into strings so large
// integers keep every digit. Suites decoded with UseNumber need it before
// verification.
func NormalizeNumbers(suite *Suite) {
	for i := range suite.Contracts {
		c := &suite.Contracts[i]
		for j, v := range c.ConstructorArgs {
			c.ConstructorArgs[j] = numberToString(v)
		}
		for k, v := range c.Immutables {
			c.Immutables[k] = numberToString(v)
		}
		if c.State == nil {
			continue
		}
		for j := range c.State.ViewCalls {
			vc := &c.State.ViewCalls[j]
			vc.Expected = numberToString(vc.Expected)
			for k, p := range vc.Params {
				vc.Params[k] = numberToString(p)
			}
		}
		for j := range c.State.Slots {
			c.State.Slots[j].Expected = numberToString(c.State.Slots[j].Expected)
		}
		for j := range c.State.StoragePaths {
			c.State.StoragePaths[j].Expected = numberToString(c.State.StoragePaths[j].Expected)
		}
		for j := range c.State.Namespaces {
			vars := c.State.Namespaces[j].Variables
			for k := range vars {
				vars[k].Expected = numberToString(vars[k].Expected)
			}
		}
	}
}

func numberToString(v any) any {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case []any:
		for i := range t {
			t[i] = numberToString(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = numberToString(t[k])
		}
	}
	return v
}
