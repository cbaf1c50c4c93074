package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"mindwatch/internal/repo"
	logx "mindwatch/pkg/logx"
)

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, log logx.Logger, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("encode response failed", logx.Err(err))
	}
}

func writeData(w http.ResponseWriter, log logx.Logger, data any) {
	writeJSON(w, log, http.StatusOK, envelope{Success: true, Data: data})
}

func writeMsg(w http.ResponseWriter, log logx.Logger, msg string) {
	writeJSON(w, log, http.StatusOK, envelope{Success: true, Msg: msg})
}

func writeError(w http.ResponseWriter, log logx.Logger, status int, msg string) {
	writeJSON(w, log, status, envelope{Success: false, Msg: msg})
}

// writeStoreError maps a repository failure to a 500. Undecodable documents
// are reported as such so an operator knows the store needs repair.
func writeStoreError(w http.ResponseWriter, log logx.Logger, op string, err error) {
	log.Error("store operation failed", logx.String("op", op), logx.Err(err))
	msg := "Failed to " + op
	if errors.Is(err, repo.ErrDecode) {
		msg += ": stored document is corrupt"
	} else {
		msg += ": " + err.Error()
	}
	writeError(w, log, http.StatusInternalServerError, msg)
}

// decodeBody reads a JSON request body of at most maxBody bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
