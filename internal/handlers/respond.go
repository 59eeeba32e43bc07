package handlers

import (
	"encoding/json"
	"net/http"
)

// MessageResponse is the body of every non-success reply and of the
// delete/sign-out confirmations.
type MessageResponse struct {
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Msg: msg})
}

func serverError(w http.ResponseWriter) {
	writeMsg(w, http.StatusInternalServerError, "Server Error")
}
