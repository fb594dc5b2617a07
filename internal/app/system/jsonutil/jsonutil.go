// Package jsonutil provides helper functions for JSON API responses.
//
// Every failure body has the shape {"success": false, "message": "..."}.
// Messages are written for end users; internal reasons never go in them.
package jsonutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 64 << 10

// ErrEmptyBody is returned by Decode when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// Failure is the error envelope.
type Failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Message is the envelope for successful responses that only carry a message.
type Message struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a 200 OK JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// OKMessage writes {"success": true, "message": msg}.
func OKMessage(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusOK, Message{Success: true, Message: msg})
}

// Fail writes the error envelope with the given status code.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Failure{Success: false, Message: message})
}

// BadRequest writes a 400 failure.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, message)
}

// Unauthorized writes a 401 failure.
func Unauthorized(w http.ResponseWriter, message string) {
	Fail(w, http.StatusUnauthorized, message)
}

// NotFound writes a 404 failure.
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, message)
}

// InternalError writes a 500 failure. Log the actual error separately.
func InternalError(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, "Internal server error")
}

// Decode reads at most MaxBodyBytes of JSON from the request body into v.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}
