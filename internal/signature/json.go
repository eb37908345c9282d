package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldsFromJSON превращает JSON-объект в Fields.
// Числа сохраняются в том виде, в котором пришли ("150000", а не "1.5e+05").
// null и вложенные объекты не попадают в результат, позиционная подпись подставит вместо них "null".
func FieldsFromJSON(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}

	fields := make(Fields, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = strconv.FormatBool(val)
		}
	}
	return fields, nil
}
