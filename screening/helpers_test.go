package screening

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %s", err)
	}
}

func readBody(t *testing.T, r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read request body: %s", err)
	}
	return body
}
