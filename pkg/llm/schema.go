package llm

import (
	"fmt"

	"github.com/stagehand-dev/stagehand/pkg/llm/types"
)

const maxEditsPerAction = 64
const maxPlanSteps = 32

type paramKind int

const (
	kindString paramKind = iota
	kindInt
	kindArray
	kindObject
	kindAny
)

type paramSpec struct {
	kind     paramKind
	required bool
	enum     []string
	min      float64
	max      float64
	maxLen   int
}

type actionSchema struct {
	Type types.ActionType
	// params not listed here are rejected
	Params map[string]paramSpec
	// extra cross-field checks
	Check func(params map[string]interface{}) error
}

var actionSchemas = map[string]actionSchema{
	"get_document": {
		Type: types.ActionTypeContext,
		Params: map[string]paramSpec{
			"path": {kind: kindString, required: true},
		},
	},
	"list_documents": {
		Type: types.ActionTypeContext,
		Params: map[string]paramSpec{
			"prefix": {kind: kindString},
		},
	},
	"edit_document": {
		Type: types.ActionTypeEdit,
		Params: map[string]paramSpec{
			"path":  {kind: kindString, required: true},
			"edits": {kind: kindArray, maxLen: maxEditsPerAction},
			"patch": {kind: kindString},
		},
		Check: func(params map[string]interface{}) error {
			_, hasEdits := params["edits"]
			_, hasPatch := params["patch"]
			if !hasEdits && !hasPatch {
				return fmt.Errorf("one of edits or patch is required")
			}
			if hasEdits {
				return validateEdits(params["edits"])
			}
			return nil
		},
	},
	"object_op": {
		Type: types.ActionTypeObject,
		Params: map[string]paramSpec{
			"op":       {kind: kindString, required: true, enum: []string{"create", "delete", "move", "set_property"}},
			"path":     {kind: kindString, required: true},
			"toPath":   {kind: kindString},
			"content":  {kind: kindString},
			"property": {kind: kindString},
			"value":    {kind: kindAny},
		},
		Check: func(params map[string]interface{}) error {
			op, _ := params["op"].(string)
			if op == "move" {
				if toPath, _ := params["toPath"].(string); toPath == "" {
					return fmt.Errorf("move requires toPath")
				}
			}
			if op == "set_property" {
				if property, _ := params["property"].(string); property == "" {
					return fmt.Errorf("set_property requires property")
				}
			}
			return nil
		},
	},
	"insert_asset": {
		Type: types.ActionTypeAsset,
		Params: map[string]paramSpec{
			"query":    {kind: kindString},
			"assetId":  {kind: kindString},
			"path":     {kind: kindString},
			"position": {kind: kindObject},
		},
		Check: func(params map[string]interface{}) error {
			_, hasQuery := params["query"]
			_, hasID := params["assetId"]
			if !hasQuery && !hasID {
				return fmt.Errorf("one of query or assetId is required")
			}
			return nil
		},
	},
	"update_plan": {
		Type: types.ActionTypePlanning,
		Params: map[string]paramSpec{
			"steps":       {kind: kindArray, required: true, maxLen: maxPlanSteps},
			"currentStep": {kind: kindInt, min: 0, max: float64(maxPlanSteps - 1)},
		},
		Check: func(params map[string]interface{}) error {
			steps, _ := params["steps"].([]interface{})
			if len(steps) == 0 {
				return fmt.Errorf("steps must not be empty")
			}
			for i, step := range steps {
				if _, ok := step.(string); !ok {
					return fmt.Errorf("steps[%d] is not a string", i)
				}
			}
			return nil
		},
	},
	"complete": {
		Type: types.ActionTypeCompletion,
		Params: map[string]paramSpec{
			"summary": {kind: kindString},
		},
	},
}

func validateAction(name string, params map[string]interface{}) error {
	schema, ok := actionSchemas[name]
	if !ok {
		return &SchemaError{Action: name, Reason: "unknown action name"}
	}

	for key := range params {
		if _, ok := schema.Params[key]; !ok {
			return &SchemaError{Action: name, Reason: fmt.Sprintf("unexpected parameter %q", key)}
		}
	}

	for key, spec := range schema.Params {
		value, present := params[key]
		if !present {
			if spec.required {
				return &SchemaError{Action: name, Reason: fmt.Sprintf("missing required parameter %q", key)}
			}
			continue
		}
		if err := validateParam(key, spec, value); err != nil {
			return &SchemaError{Action: name, Reason: err.Error()}
		}
	}

	if schema.Check != nil {
		if err := schema.Check(params); err != nil {
			return &SchemaError{Action: name, Reason: err.Error()}
		}
	}

	return nil
}

func validateParam(key string, spec paramSpec, value interface{}) error {
	switch spec.kind {
	case kindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q is not a string", key)
		}
		if len(spec.enum) > 0 {
			for _, allowed := range spec.enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("parameter %q must be one of %v", key, spec.enum)
		}
	case kindInt:
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("parameter %q is not an integer", key)
		}
		if f < spec.min || (spec.max > 0 && f > spec.max) {
			return fmt.Errorf("parameter %q is out of range", key)
		}
	case kindArray:
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("parameter %q is not an array", key)
		}
		if spec.maxLen > 0 && len(arr) > spec.maxLen {
			return fmt.Errorf("parameter %q exceeds %d entries", key, spec.maxLen)
		}
	case kindObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("parameter %q is not an object", key)
		}
	case kindAny:
	}
	return nil
}

func validateEdits(value interface{}) error {
	edits, ok := value.([]interface{})
	if !ok {
		return fmt.Errorf("edits is not an array")
	}
	for i, raw := range edits {
		edit, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("edits[%d] is not an object", i)
		}
		for _, field := range []string{"startLine", "startChar", "endLine", "endChar"} {
			f, ok := edit[field].(float64)
			if !ok || f != float64(int64(f)) || f < 0 {
				return fmt.Errorf("edits[%d].%s is not a non-negative integer", i, field)
			}
		}
		if _, ok := edit["newText"].(string); !ok {
			return fmt.Errorf("edits[%d].newText is not a string", i)
		}
	}
	return nil
}
