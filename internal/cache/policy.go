package cache

import "fmt"

// Policy decides how an incoming field value combines with the cached one.
type Policy int

const (
	// Replace overwrites the cached value. It is the default for every field.
	Replace Policy = iota
	// Append concatenates incoming list items after the cached ones.
	// Writing the same page twice stores it twice.
	Append
	// DedupeByID concatenates lists, keeping one item per entity identity.
	// A repeated item keeps its first position and takes the latest value.
	DedupeByID
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case DedupeByID:
		return "dedupe-by-id"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a policy name as returned by String back to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "replace", "":
		return Replace, nil
	case "append":
		return Append, nil
	case "dedupe-by-id":
		return DedupeByID, nil
	}
	return Replace, fmt.Errorf("cache: unknown merge policy %q", s)
}

// Policies maps response field names to their merge policy. Fields not
// listed use Replace.
type Policies map[string]Policy

func (c *Cache) mergeObject(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = c.mergeField(k, existing[k], v)
	}
	return out
}

func (c *Cache) mergeField(field string, existing, incoming any) any {
	switch c.policies[field] {
	case Append:
		if a, b, ok := bothLists(existing, incoming); ok {
			out := make([]any, 0, len(a)+len(b))
			return append(append(out, a...), b...)
		}
	case DedupeByID:
		if a, b, ok := bothLists(existing, incoming); ok {
			return c.dedupe(a, b)
		}
	}
	return incoming
}

func bothLists(existing, incoming any) ([]any, []any, bool) {
	a, ok := existing.([]any)
	if !ok {
		return nil, nil, false
	}
	b, ok := incoming.([]any)
	if !ok {
		return nil, nil, false
	}
	return a, b, true
}

func (c *Cache) dedupe(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	pos := map[string]int{}
	for _, item := range append(append([]any(nil), a...), b...) {
		if obj, ok := item.(map[string]any); ok {
			if key, ok := c.identify(obj); ok {
				if i, seen := pos[key]; seen {
					out[i] = item
					continue
				}
				pos[key] = len(out)
			}
		}
		out = append(out, item)
	}
	return out
}
