package annex

import (
	"fmt"
	"reflect"
)

// flattenDirs resolves a directory input into a flat, deduplicated list of
// path strings. The input may be a single string or any nesting of slices
// and arrays whose leaves are strings; first-seen order is preserved.
func flattenDirs(input any) ([]string, error) {
	var dirs []string
	seen := make(map[string]struct{})

	var walk func(v any) error
	walk = func(v any) error {
		switch t := v.(type) {
		case nil:
			return nil
		case string:
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				dirs = append(dirs, t)
			}
			return nil
		case []string:
			for _, s := range t {
				if err := walk(s); err != nil {
					return err
				}
			}
			return nil
		case []any:
			for _, e := range t {
				if err := walk(e); err != nil {
					return err
				}
			}
			return nil
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}

		return fmt.Errorf("unsupported directory input type %T", v)
	}

	if err := walk(input); err != nil {
		return nil, err
	}
	return dirs, nil
}
