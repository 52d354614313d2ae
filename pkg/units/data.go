package units

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/unitflow/unitflow/pkg/engine"
)

// maxResponseBody caps how much of an HTTP response the unit will buffer.
const maxResponseBody = 4 << 20

// HTTPRequest returns the builtin HTTP request unit. Network failures and
// server errors are transient so the scheduler's retry policy applies; client
// errors are permanent.
func HTTPRequest() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "http_request",
		Name:        "HTTP Request",
		Description: "Sends an HTTP request and returns the response",
		Category:    "data",
		Tags:        []string{"http", "api", "network", "external"},
		Priority:    10,
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		Inputs: map[string]engine.InputField{
			"url": {
				Type:        engine.FieldTypeString,
				Description: "Request URL",
				Required:    true,
			},
			"method": {
				Type:        engine.FieldTypeString,
				Description: "HTTP method",
				Default:     "GET",
				HasDefault:  true,
				Enum:        []interface{}{"GET", "POST", "PUT", "DELETE"},
			},
		},
		Outputs: map[string]engine.OutputField{
			"status": {Type: engine.FieldTypeInteger, Description: "HTTP status code"},
			"url":    {Type: engine.FieldTypeString, Description: "Requested URL"},
			"method": {Type: engine.FieldTypeString, Description: "HTTP method used"},
			"body":   {Type: engine.FieldTypeString, Description: "Response body"},
		},
		Executor: engine.ExecutorFunc(httpRequest),
	}
}

func httpRequest(ctx context.Context, input engine.Record) (engine.Record, error) {
	url, _ := input["url"].(string)
	method, _ := input["method"].(string)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, engine.NewPermanentError("invalid request", err).
			WithCode(engine.ErrCodeValidation)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, engine.NewTransientError(fmt.Sprintf("request to %s failed", url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, engine.NewTransientError("failed to read response body", err)
	}

	if resp.StatusCode >= 500 {
		return nil, engine.NewTransientError(
			fmt.Sprintf("server returned %d for %s", resp.StatusCode, url), nil)
	}

	return engine.Record{
		"status": resp.StatusCode,
		"url":    url,
		"method": method,
		"body":   string(body),
	}, nil
}

// WebSearch returns the builtin search unit. Results are synthesized locally;
// the unit exists so multi-unit plans have a search-shaped producer without an
// external service account.
func WebSearch() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "web_search",
		Name:        "Web Search",
		Description: "Searches for information and returns ranked results",
		Category:    "data",
		Tags:        []string{"search", "web", "research"},
		Priority:    15,
		Timeout:     20 * time.Second,
		Inputs: map[string]engine.InputField{
			"query": {
				Type:        engine.FieldTypeString,
				Description: "Search query",
				Required:    true,
			},
			"max_results": {
				Type:        engine.FieldTypeInteger,
				Description: "Maximum number of results",
				Default:     5,
				HasDefault:  true,
			},
		},
		Outputs: map[string]engine.OutputField{
			"query":         {Type: engine.FieldTypeString, Description: "The query searched for"},
			"total_results": {Type: engine.FieldTypeInteger, Description: "Number of results returned"},
			"results":       {Type: engine.FieldTypeArray, Description: "Ranked result list"},
		},
		Executor: engine.ExecutorFunc(webSearch),
	}
}

func webSearch(_ context.Context, input engine.Record) (engine.Record, error) {
	query, _ := input["query"].(string)
	max := intValue(input["max_results"], 5)
	if max > 3 {
		max = 3
	}

	results := make([]interface{}, 0, max)
	for i := 0; i < max; i++ {
		results = append(results, map[string]interface{}{
			"title":   fmt.Sprintf("Result %d for %q", i+1, query),
			"url":     fmt.Sprintf("https://example.com/result%d", i+1),
			"snippet": fmt.Sprintf("Summary of result %d about %s", i+1, query),
		})
	}

	return engine.Record{
		"query":         query,
		"total_results": len(results),
		"results":       results,
	}, nil
}

// FileRead returns the builtin file reader unit.
func FileRead() *engine.UnitDefinition {
	return &engine.UnitDefinition{
		ID:          "file_read",
		Name:        "Read File",
		Description: "Reads a text file and returns its content",
		Category:    "data",
		Tags:        []string{"file", "io", "read"},
		Priority:    8,
		Inputs: map[string]engine.InputField{
			"file_path": {
				Type:        engine.FieldTypeString,
				Description: "Path of the file to read",
				Required:    true,
			},
		},
		Outputs: map[string]engine.OutputField{
			"content": {Type: engine.FieldTypeString, Description: "File content"},
			"size":    {Type: engine.FieldTypeInteger, Description: "Content length in bytes"},
		},
		Executor: engine.ExecutorFunc(fileRead),
	}
}

func fileRead(_ context.Context, input engine.Record) (engine.Record, error) {
	path, _ := input["file_path"].(string)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewPermanentError(
				fmt.Sprintf("file %s does not exist", path), err)
		}
		return nil, engine.NewTransientError(
			fmt.Sprintf("failed to read %s", path), err)
	}

	return engine.Record{
		"content": string(content),
		"size":    len(content),
	}, nil
}

// intValue reads a numeric input that may arrive as int or, after JSON
// decoding, as float64.
func intValue(v interface{}, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
