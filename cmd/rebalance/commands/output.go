package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/PaesslerAG/jsonpath"
)

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// writeQuery evaluates a JSONPath expression against the JSON form of v
func writeQuery(w io.Writer, v any, path string, pretty bool) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}

	var jobj any
	if err := json.Unmarshal(raw, &jobj); err != nil {
		return err
	}

	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return fmt.Errorf("query %q: %w", path, err)
	}

	// 문자열 스칼라는 따옴표 없이 출력 (셸 파이프라인용)
	if s, ok := jval.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	return writeJSON(w, jval, pretty)
}
