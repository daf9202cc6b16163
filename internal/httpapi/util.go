package httpapi

import (
	"encoding/json"
	"io"
)

func jsonEncode(w io.Writer, body any) error {
	return json.NewEncoder(w).Encode(body)
}
