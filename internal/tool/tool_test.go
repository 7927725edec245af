package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInvokeSuccess(t *testing.T) {
	echo := &Tool{
		Description: "echo",
		Parameters: Object(
			Field{Name: "text", Type: TypeString, Required: true},
		),
		Execute: func(_ context.Context, args Args, _ Options) (Result, error) {
			return Success(args.String("text")), nil
		},
	}

	result := Invoke(context.Background(), echo, Args{"text": "hello"}, Options{})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Result != "hello" {
		t.Fatalf("unexpected result: %v", result.Result)
	}
}

func TestInvokeValidatesRequiredArgs(t *testing.T) {
	tl := &Tool{
		Parameters: Object(
			Field{Name: "query", Type: TypeString, Required: true},
		),
		Execute: func(_ context.Context, _ Args, _ Options) (Result, error) {
			t.Fatal("execute should not run when validation fails")
			return Result{}, nil
		},
	}

	result := Invoke(context.Background(), tl, Args{}, Options{})
	if result.Success {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(result.Error, "query") {
		t.Fatalf("expected error to mention missing field, got %q", result.Error)
	}
}

func TestInvokeValidatesArgTypes(t *testing.T) {
	tl := &Tool{
		Parameters: Object(
			Field{Name: "limit", Type: TypeNumber, Required: true},
		),
		Execute: func(_ context.Context, _ Args, _ Options) (Result, error) {
			return Success(nil), nil
		},
	}

	result := Invoke(context.Background(), tl, Args{"limit": "ten"}, Options{})
	if result.Success {
		t.Fatal("expected type mismatch failure")
	}
}

func TestInvokeContainsPanics(t *testing.T) {
	tl := &Tool{
		Parameters: Object(),
		Execute: func(_ context.Context, _ Args, _ Options) (Result, error) {
			panic("boom")
		},
	}

	result := Invoke(context.Background(), tl, Args{}, Options{})
	if result.Success {
		t.Fatal("expected panic to be converted into a failure")
	}
	if !strings.Contains(result.Error, "boom") {
		t.Fatalf("expected panic message in error, got %q", result.Error)
	}
}

func TestInvokeConvertsErrors(t *testing.T) {
	tl := &Tool{
		Parameters: Object(),
		Execute: func(_ context.Context, _ Args, _ Options) (Result, error) {
			return Result{}, errors.New("upstream unavailable")
		},
	}

	result := Invoke(context.Background(), tl, Args{}, Options{})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.Error != "upstream unavailable" {
		t.Fatalf("unexpected error text: %q", result.Error)
	}
}

func TestInvokeNilTool(t *testing.T) {
	result := Invoke(context.Background(), nil, Args{}, Options{})
	if result.Success {
		t.Fatal("expected failure for undefined tool")
	}
}
