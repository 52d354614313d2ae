package engine_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/unitflow/unitflow/pkg/engine"
)

// Example_workflow demonstrates the full register → plan → execute cycle.
func Example_workflow() {
	registry := engine.NewRegistry()

	// A producer emitting a greeting and a consumer shouting it.
	err := registry.RegisterAll([]*engine.UnitDefinition{
		{
			ID:   "greet",
			Name: "Greeter",
			Outputs: map[string]engine.OutputField{
				"text": {Type: engine.FieldTypeString},
			},
			Executor: engine.ExecutorFunc(func(_ context.Context, _ engine.Record) (engine.Record, error) {
				return engine.Record{"text": "hello"}, nil
			}),
		},
		{
			ID:           "shout",
			Name:         "Shouter",
			Dependencies: []string{"greet"},
			Inputs: map[string]engine.InputField{
				"text": {Type: engine.FieldTypeString, Required: true},
			},
			Outputs: map[string]engine.OutputField{
				"text": {Type: engine.FieldTypeString},
			},
			Executor: engine.ExecutorFunc(func(_ context.Context, input engine.Record) (engine.Record, error) {
				return engine.Record{"text": strings.ToUpper(input["text"].(string)) + "!"}, nil
			}),
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	plan, err := engine.NewPlanner(registry).BuildPlan(engine.RequestedSet{Primary: "shout"})
	if err != nil {
		log.Fatal(err)
	}
	for i, layer := range plan.Layers {
		fmt.Printf("layer %d: %v\n", i, layer)
	}

	result, err := engine.NewScheduler(registry).Execute(context.Background(), plan, engine.ScheduleOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("status:", result.Status)
	fmt.Println("output:", result.Units["shout"].Output["text"])
	// Output:
	// layer 0: [greet]
	// layer 1: [shout]
	// status: succeeded
	// output: HELLO!
}

// ExamplePlanner_BuildPlan shows explicit parameters taking precedence over
// the implicit producer reference.
func ExamplePlanner_BuildPlan() {
	registry := engine.NewRegistry()
	echo := func(_ context.Context, input engine.Record) (engine.Record, error) {
		return input, nil
	}
	_ = registry.Register(&engine.UnitDefinition{
		ID: "fetch",
		Outputs: map[string]engine.OutputField{
			"body": {Type: engine.FieldTypeString},
		},
		Executor: engine.ExecutorFunc(echo),
	})
	_ = registry.Register(&engine.UnitDefinition{
		ID:           "report",
		Dependencies: []string{"fetch"},
		Inputs: map[string]engine.InputField{
			"title": {Type: engine.FieldTypeString, Required: true},
			"body":  {Type: engine.FieldTypeString},
		},
		Executor: engine.ExecutorFunc(echo),
	})

	if err := registry.ValidateGraph(); err != nil {
		log.Fatal(err)
	}

	plan, err := engine.NewPlanner(registry).BuildPlan(engine.RequestedSet{
		Primary: "report",
		Parameters: map[string]map[string]interface{}{
			"report": {"title": "Weekly Summary"},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("title mapping:", plan.Mappings["report"]["title"].Kind)
	fmt.Println("body mapping:", plan.Mappings["report"]["body"].Kind)
	// Output:
	// title mapping: literal
	// body mapping: reference
}
