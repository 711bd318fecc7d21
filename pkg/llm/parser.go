package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/stagehand-dev/stagehand/pkg/llm/types"
)

// Action envelopes look like:
//
//	<stagehandAction name="edit_document">{"path": "...", "edits": [...]}</stagehandAction>
//
// The body is a JSON object of parameters, or empty for parameterless
// actions. Only the first well-formed envelope in a message counts;
// anything after it is ignored. One action per message is a protocol
// invariant, not a prompt suggestion.
var (
	envelopeRegex = regexp.MustCompile(`(?s)<stagehandAction\s+name="([^"]+)"[^>]*>(.*?)</stagehandAction>`)
	selfClosing   = regexp.MustCompile(`<stagehandAction\s+name="([^"]+)"[^>]*/>`)
)

// ExtractAction parses exactly one Action out of raw model output.
// Errors are either ErrNoActionFound (no envelope at all) or a
// *SchemaError (envelope present but invalid); both are recoverable by
// the orchestration loop's fallback policy.
func ExtractAction(raw string) (*types.Action, error) {
	name, body, found := firstEnvelope(raw)
	if !found {
		return nil, ErrNoActionFound
	}

	actionType, ok := actionTypeForName(name)
	if !ok {
		return nil, &SchemaError{Action: name, Reason: "unknown action name"}
	}

	params := map[string]interface{}{}
	body = strings.TrimSpace(body)
	if body != "" {
		if err := json.Unmarshal([]byte(body), &params); err != nil {
			// Models sometimes double-encode the whole parameter object.
			var encoded string
			if err2 := json.Unmarshal([]byte(body), &encoded); err2 == nil {
				if err3 := json.Unmarshal([]byte(encoded), &params); err3 != nil {
					return nil, &SchemaError{Action: name, Reason: "parameters are not a JSON object"}
				}
			} else {
				return nil, &SchemaError{Action: name, Reason: "parameters are not a JSON object"}
			}
		}
	}

	params = NormalizeParams(name, params)

	if err := validateAction(name, params); err != nil {
		return nil, err
	}

	return &types.Action{
		Name:   name,
		Type:   actionType,
		Params: params,
		Raw:    rebuildEnvelope(name, body),
	}, nil
}

func firstEnvelope(raw string) (name, body string, found bool) {
	match := envelopeRegex.FindStringSubmatchIndex(raw)
	short := selfClosing.FindStringSubmatchIndex(raw)

	// A self-closing envelope earlier in the text wins over a full one
	// later; position decides, not form. Both patterns match at the
	// offset of a leading self-closing tag (the full pattern's attribute
	// matcher consumes the "/"), so a tie is the self-closing form.
	if match == nil && short == nil {
		return "", "", false
	}
	if match == nil || (short != nil && short[0] <= match[0]) {
		return raw[short[2]:short[3]], "", true
	}
	return raw[match[2]:match[3]], raw[match[4]:match[5]], true
}

func rebuildEnvelope(name, body string) string {
	if body == "" {
		return `<stagehandAction name="` + name + `"/>`
	}
	return `<stagehandAction name="` + name + `">` + body + `</stagehandAction>`
}

func actionTypeForName(name string) (types.ActionType, bool) {
	spec, ok := actionSchemas[name]
	if !ok {
		return "", false
	}
	return spec.Type, true
}

// jsonValuedParams lists parameters that models emit either as a raw JSON
// value or as a JSON-encoded string. NormalizeParams coerces the string
// form into the value form so validation sees one canonical shape.
var jsonValuedParams = map[string]bool{
	"edits":    true,
	"value":    true,
	"steps":    true,
	"position": true,
}

// NormalizeParams is a pure transform: it returns a new map with
// known-ambiguous fields coerced to canonical form. The input map is not
// modified.
func NormalizeParams(action string, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok && jsonValuedParams[k] {
			trimmed := strings.TrimSpace(s)
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				var decoded interface{}
				if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
					out[k] = decoded
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}
