package units

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unitflow/unitflow/pkg/engine"
	"github.com/unitflow/unitflow/pkg/scripting"
)

// Calculator returns the builtin arithmetic unit. Expressions are evaluated in
// the scripting sandbox, so they have no access to IO or the environment.
func Calculator() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "calculator",
		Name:        "Calculator",
		Description: "Evaluates an arithmetic expression",
		Category:    "transform",
		Tags:        []string{"math", "calculation", "compute"},
		Priority:    20,
		Timeout:     5 * time.Second,
		Inputs: map[string]engine.InputField{
			"expression": {
				Type:        engine.FieldTypeString,
				Description: "Arithmetic expression, e.g. '25 * 4 + 10'",
				Required:    true,
			},
		},
		Outputs: map[string]engine.OutputField{
			"result": {Type: engine.FieldTypeNumber, Description: "Evaluation result"},
		},
		Executor: engine.ExecutorFunc(calculate),
	}
}

func calculate(_ context.Context, input engine.Record) (engine.Record, error) {
	expr, _ := input["expression"].(string)

	value, err := scripting.EvalExpr(expr, nil)
	if err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("failed to evaluate %q", expr), err).
			WithCode(engine.ErrCodeValidation)
	}

	var result float64
	switch n := value.(type) {
	case int64:
		result = float64(n)
	case float64:
		result = n
	default:
		return nil, engine.NewPermanentError(
			fmt.Sprintf("expression %q did not produce a number, got %T", expr, value), nil).
			WithCode(engine.ErrCodeValidation)
	}

	return engine.Record{"result": result}, nil
}

// TextProcessing returns the builtin text transform unit.
func TextProcessing() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "text_processing",
		Name:        "Text Processing",
		Description: "Applies a basic transformation to a text value",
		Category:    "transform",
		Tags:        []string{"text", "string", "process"},
		Priority:    3,
		Inputs: map[string]engine.InputField{
			"text": {
				Type:        engine.FieldTypeString,
				Description: "Text to process",
				Required:    true,
			},
			"operation": {
				Type:        engine.FieldTypeString,
				Description: "Transformation to apply",
				Default:     "count",
				HasDefault:  true,
				Enum:        []interface{}{"count", "lower", "upper", "reverse"},
			},
		},
		Outputs: map[string]engine.OutputField{
			"operation": {Type: engine.FieldTypeString, Description: "Operation applied"},
			"result":    {Type: engine.FieldTypeAny, Description: "Transformed value"},
		},
		Executor: engine.ExecutorFunc(processText),
	}
}

func processText(_ context.Context, input engine.Record) (engine.Record, error) {
	text, _ := input["text"].(string)
	operation, _ := input["operation"].(string)

	var result interface{}
	switch operation {
	case "count":
		result = len([]rune(text))
	case "lower":
		result = strings.ToLower(text)
	case "upper":
		result = strings.ToUpper(text)
	case "reverse":
		runes := []rune(text)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		result = string(runes)
	default:
		// Unreachable when the schema enum is enforced.
		return nil, engine.NewPermanentError(
			fmt.Sprintf("unknown operation %q", operation), nil).
			WithCode(engine.ErrCodeValidation)
	}

	return engine.Record{
		"operation": operation,
		"result":    result,
	}, nil
}

// DataAnalysis returns the builtin structural analysis unit. It summarizes
// whatever value it receives, which makes it a handy terminal consumer in
// mixed pipelines.
func DataAnalysis() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "data_analysis",
		Name:        "Data Analysis",
		Description: "Summarizes the shape of a data value",
		Category:    "transform",
		Tags:        []string{"analysis", "stats", "data"},
		Priority:    5,
		Inputs: map[string]engine.InputField{
			"data": {
				Type:        engine.FieldTypeAny,
				Description: "Value to analyze",
				Required:    true,
			},
			"analysis_type": {
				Type:        engine.FieldTypeString,
				Description: "Kind of analysis",
				Default:     "summary",
				HasDefault:  true,
				Enum:        []interface{}{"summary", "stats", "count"},
			},
		},
		Outputs: map[string]engine.OutputField{
			"analysis": {Type: engine.FieldTypeObject, Description: "Analysis result"},
		},
		Executor: engine.ExecutorFunc(analyzeData),
	}
}

func analyzeData(_ context.Context, input engine.Record) (engine.Record, error) {
	analysisType, _ := input["analysis_type"].(string)

	var analysis map[string]interface{}
	switch data := input["data"].(type) {
	case []interface{}:
		analysis = map[string]interface{}{
			"type":      analysisType,
			"data_type": "list",
			"count":     len(data),
			"summary":   fmt.Sprintf("list with %d elements", len(data)),
		}
	case map[string]interface{}:
		keys := make([]interface{}, 0, len(data))
		for key := range data {
			keys = append(keys, key)
		}
		analysis = map[string]interface{}{
			"type":      analysisType,
			"data_type": "dict",
			"keys":      keys,
			"count":     len(keys),
			"summary":   fmt.Sprintf("dict with %d keys", len(keys)),
		}
	case string:
		analysis = map[string]interface{}{
			"type":      analysisType,
			"data_type": "string",
			"length":    len(data),
			"summary":   fmt.Sprintf("string with %d characters", len(data)),
		}
	default:
		analysis = map[string]interface{}{
			"type":      analysisType,
			"data_type": fmt.Sprintf("%T", data),
			"value":     fmt.Sprintf("%v", data),
		}
	}

	return engine.Record{"analysis": analysis}, nil
}
