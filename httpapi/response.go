package httpapi

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-helpdesk/core"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders {success:false,error} with the status the service error
// taxonomy assigns to err.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, core.HTTPStatus(err), errorBody{
		Success: false,
		Error:   core.PublicMessage(err),
	})
}
