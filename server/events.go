package main

import "time"

// Terminal error codes surfaced to stream clients.
const (
	codeCheckError  = "CHECK_ERROR"
	codeStreamError = "STREAM_ERROR"
)

// streamFrame is the wire shape of every data frame on an event
// stream: the event kind, when it was relayed, and the kind-specific
// payload.
type streamFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// streamErrorPayload is the data of a terminal error frame.
type streamErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
