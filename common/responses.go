package common

import "encoding/json"

type NewMessageRequest struct {
	ID   string          `json:"id,omitempty"`
	Body json.RawMessage `json:"body"`
}

type NewMessageResponse struct {
	ID string `json:"id"`
}

type ReceiveRequest struct {
	MaxMessages              int  `json:"max_messages"`
	VisibilityTimeoutSeconds int  `json:"visibility_timeout_seconds"`
	DeleteAfterReceive       bool `json:"delete_after_receive,omitempty"`
	OnlyNew                  bool `json:"only_new,omitempty"`
}

type UpdateMessageRequest struct {
	Body json.RawMessage `json:"body"`
}

type ExistsBatchRequest struct {
	IDs []string `json:"ids"`
}

type ExistsBatchResponse struct {
	IDs []string `json:"ids"`
}

type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}

type UpdatedResponse struct {
	Updated bool `json:"updated"`
}

type ClearedResponse struct {
	Cleared bool `json:"cleared"`
}

type CleanedUpResponse struct {
	CleanedUp bool `json:"cleaned_up"`
}

type ErrorResponse struct {
	Code string `json:"code,omitempty"`
}
