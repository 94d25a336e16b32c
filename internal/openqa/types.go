package openqa

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JobGroup is one record from the server's job group directory.
// Template is nil when the group has never been configured.
type JobGroup struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Template *string `json:"template"`
}

// ErrorEntry is one item of a structured server validation error.
// Path is empty when the server sent a plain string instead of a
// path/message pair.
type ErrorEntry struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ErrorPayload is the server's error field in one of its three shapes:
// a list of path/message pairs, a list of plain strings, or one flat
// message. Exactly one of Entries and Flat is populated.
type ErrorPayload struct {
	Entries []ErrorEntry
	Flat    string
}

// IsZero reports whether the payload carries no error at all.
func (p ErrorPayload) IsZero() bool {
	return len(p.Entries) == 0 && p.Flat == ""
}

// ApplyResult is the outcome of one apply-template call. Changes is the
// server's textual diff summary and is empty when nothing would change.
type ApplyResult struct {
	Status  int
	Error   ErrorPayload
	Changes string
}

// applyResponse mirrors the raw JSON shape of an apply-template response.
// The error field's type varies, so it is captured undecoded.
type applyResponse struct {
	ErrorStatus int             `json:"error_status"`
	Error       json.RawMessage `json:"error"`
	Changes     string          `json:"changes"`
}

func parseApplyResult(data []byte) (*ApplyResult, error) {
	var resp applyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unparseable apply response: %w", err)
	}

	payload, err := parseErrorPayload(resp.Error)
	if err != nil {
		return nil, err
	}

	return &ApplyResult{
		Status:  resp.ErrorStatus,
		Error:   payload,
		Changes: resp.Changes,
	}, nil
}

// parseErrorPayload discriminates the error field's shape by its leading
// token instead of probing decode attempts.
func parseErrorPayload(raw json.RawMessage) (ErrorPayload, error) {
	var payload ErrorPayload

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return payload, nil
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return payload, fmt.Errorf("unparseable error list: %w", err)
		}
		for _, item := range items {
			entry, err := parseErrorEntry(item)
			if err != nil {
				return payload, err
			}
			payload.Entries = append(payload.Entries, entry)
		}
	case '"':
		if err := json.Unmarshal(raw, &payload.Flat); err != nil {
			return payload, fmt.Errorf("unparseable error message: %w", err)
		}
	default:
		// Numbers and other scalars are taken verbatim.
		payload.Flat = string(raw)
	}
	return payload, nil
}

func parseErrorEntry(raw json.RawMessage) (ErrorEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var entry ErrorEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return ErrorEntry{}, fmt.Errorf("unparseable error entry: %w", err)
		}
		return entry, nil
	}

	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ErrorEntry{}, fmt.Errorf("unparseable error entry: %w", err)
	}
	return ErrorEntry{Message: msg}, nil
}
