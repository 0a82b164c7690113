package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookPayload is posted verbatim to the n8n trigger endpoints.
type WebhookPayload struct {
	Filename string `json:"filename"`
	Template string `json:"template"`
}

type CallbackKind string

const (
	CallbackFailure      CallbackKind = "failure"
	CallbackSuccess      CallbackKind = "success"
	CallbackUnrecognized CallbackKind = "unrecognized"
)

// CallbackResult is what the workflow reports back once per triggered run.
type CallbackResult struct {
	Kind  CallbackKind
	Error string
	Files []string
	Raw   string
}

// ParseCallback classifies a callback body. An "error" key wins over "files",
// and anything that is not a JSON object is unrecognized.
func ParseCallback(body []byte) CallbackResult {
	res := CallbackResult{Kind: CallbackUnrecognized, Raw: strings.TrimSpace(string(body))}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return res
	}

	if raw, ok := fields["error"]; ok {
		res.Kind = CallbackFailure
		var msg string
		if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
			msg = strings.Trim(string(raw), `"`)
		}
		if msg == "" || msg == "null" {
			msg = "Unknown error"
		}
		res.Error = msg
		return res
	}

	if raw, ok := fields["files"]; ok {
		var files []string
		if err := json.Unmarshal(raw, &files); err != nil {
			return res
		}
		res.Kind = CallbackSuccess
		res.Files = files
	}

	return res
}

func (r CallbackResult) Summary() string {
	switch r.Kind {
	case CallbackFailure:
		return fmt.Sprintf("n8n workflow failed: %s", r.Error)
	case CallbackSuccess:
		if len(r.Files) == 0 {
			return "Workflow completed successfully! Generated 0 file(s)"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Workflow completed successfully! Generated %d file(s)", len(r.Files))
		for _, f := range r.Files {
			fmt.Fprintf(&b, "\n  - %s", f)
		}
		return b.String()
	default:
		return fmt.Sprintf("Received callback with unknown format. Data: %s", r.Raw)
	}
}
