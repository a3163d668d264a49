// Package parser decodes request bodies into domain values. It only shapes
// input; legality of moves and shots is decided by the engine.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/botroyale/gridroyale/pkg/core"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 64 << 10

// ErrEmptyBody is returned when a required body is missing.
var ErrEmptyBody = errors.New("request body is empty")

// decode reads one JSON value from r into v.
func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// DecodeAction reads an action submission. Directions are lower-cased and
// trimmed; an empty or null shoot means no shot; reasoning is cut to
// core.MaxReasoningLength runes.
func DecodeAction(r io.Reader) (core.Action, error) {
	var req ActionRequest
	if err := decode(r, &req); err != nil {
		return core.Action{}, err
	}
	return ToAction(req), nil
}

// ToAction normalises a decoded request.
func ToAction(req ActionRequest) core.Action {
	action := core.Action{
		Move:      normaliseDirection(req.Move),
		Reasoning: TruncateReasoning(req.Reasoning),
	}
	if req.Shoot != nil {
		if d := normaliseDirection(*req.Shoot); d != "" {
			action.Shoot = &d
		}
	}
	return action
}

func normaliseDirection(s string) core.Direction {
	return core.Direction(strings.ToLower(strings.TrimSpace(s)))
}

// TruncateReasoning keeps at most core.MaxReasoningLength runes of s.
func TruncateReasoning(s string) string {
	if utf8.RuneCountInString(s) <= core.MaxReasoningLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:core.MaxReasoningLength])
}

// DecodeRegister reads a registration request. A description is folded into
// the metadata.
func DecodeRegister(r io.Reader) (RegisterRequest, error) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	if req.Description != "" {
		if req.Metadata == nil {
			req.Metadata = map[string]string{}
		}
		req.Metadata["description"] = req.Description
	}
	return req, nil
}

// DecodeVerify reads a verification request. One of agentId or token is
// required.
func DecodeVerify(r io.Reader) (VerifyRequest, error) {
	var req VerifyRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	if req.AgentID == "" && req.Token == "" {
		return req, errors.New("agentId or token is required")
	}
	return req, nil
}
