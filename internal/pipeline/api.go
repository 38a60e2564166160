// Package pipz provides a lightweight, type-safe library for building composable data processing pipelines in Go.
//
// # Overview
//
// pipz enables developers to create clean, testable, and maintainable data processing workflows
// by composing small, focused functions into larger pipelines. It addresses common challenges
// in Go applications such as scattered business logic, repetitive error handling, and
// difficult-to-test code that mixes pure logic with external dependencies.
//
// # Core Concepts
//
// The library is built around a single, uniform interface:
//
//	type Chainable[T any] interface {
//	    Process(context.Context, T) (T, *Error[T])
//	    Name() Name
//	}
//
// Key components:
//   - Processors: Individual processing steps created with the Apply adapter
//   - Connectors: Wrap other Chainables (Timeout, CircuitBreaker, Fallback)
//
// Design philosophy:
//   - Processors are immutable values (simple functions wrapped with metadata)
//   - Connectors are mutable pointers (configurable containers with state)
//
// Everything implements Chainable[T], enabling seamless composition while maintaining
// type safety through Go generics. Context support provides timeout control and cancellation.
// Execution follows a fail-fast pattern where processing stops at the first error.
//
// # Contents
//
// The package holds one adapter and three connectors:
//
//	// Apply - an operation that can fail
//	parseJSON := pipz.Apply("parse", func(_ context.Context, s string) (Data, error) {
//	    var d Data
//	    return d, json.Unmarshal([]byte(s), &d)
//	})
//
//	// Timeout - cancel the wrapped Chainable's context after a duration
//	timeout := pipz.NewTimeout("deadline", parseJSON, 30*time.Second)
//
//	// CircuitBreaker - fail fast after 5 consecutive failures, retry after 30s
//	breaker := pipz.NewCircuitBreaker("breaker", timeout, 5, 30*time.Second)
//
//	// Fallback - try Chainables in order until one succeeds
//	fallback := pipz.NewFallback("safe", primary, backup)
//
// # Error Handling
//
// pipz provides rich error information through the Error[T] type:
//
//	type Error[T any] struct {
//	    Path      []string      // Full path: ["pipeline", "validate", "parse_json"]
//	    InputData T             // The input that caused the failure
//	    Err       error         // The underlying error
//	    Timestamp time.Time     // When the error occurred
//	    Duration  time.Duration // How long before failure
//	    Timeout   bool          // Was it a timeout?
//	    Canceled  bool          // Was it canceled?
//	}
//
// Error handling example:
//
//	result, err := pipeline.Process(ctx, data)
//	if err != nil {
//	    var pipeErr *pipz.Error[Data]
//	    if errors.As(err, &pipeErr) {
//	        log.Printf("Failed at: %s", strings.Join(pipeErr.Path, " → "))
//	        log.Printf("Input data: %+v", pipeErr.InputData)
//	        log.Printf("After: %v", pipeErr.Duration)
//
//	        if pipeErr.Timeout {
//	            // Handle timeout specifically
//	        }
//	    }
//	}
package pipz

import "context"

// Chainable defines the interface for any component that can process
// values of type T. This interface enables composition of different
// processing components that operate on the same type.
//
// Chainable is the foundation of pipz - every processor, pipeline,
// and connector implements this interface. The uniform interface
// enables seamless composition while maintaining type safety through
// Go generics.
//
// Key design principles:
//   - Context support for timeout and cancellation
//   - Type safety through generics (no interface{})
//   - Error propagation for fail-fast behavior
//   - Immutable by convention (return modified copies)
//   - Named components for debugging and monitoring
type Chainable[T any] interface {
	Process(context.Context, T) (T, *Error[T])
	Name() Name
}

// Name is a type alias for processor and connector names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ValidateOrderName  Name = "validate-order"
//	    EnrichCustomerName Name = "enrich-customer"
//	    ProcessPaymentName Name = "process-payment"
//	)
//
//	validateOrder := pipz.Apply(ValidateOrderName, validateFunc)
//	enrichCustomer := pipz.Apply(EnrichCustomerName, enrichFunc)
type Name = string

// Processor defines a named processing stage that transforms a value of type T.
// It contains a descriptive name for debugging and a private function that processes the value.
// The function receives a context for cancellation and timeout control.
//
// Processor is the basic building block created by the Apply adapter.
// The name field is crucial for debugging,
// appearing in error messages and the Error[T].Path to identify exactly where failures occur.
//
// The fn field is intentionally private to ensure processors are only created through
// the provided adapter functions, maintaining consistent error handling and path tracking.
//
// Best practices for processor names:
//   - Use descriptive, action-oriented names ("validate_email", not "email")
//   - Include the operation type ("parse_json", "fetch_user", "log_event")
//   - Keep names concise but meaningful
//   - Use consistent naming conventions across your application
//   - Names appear in Error[T].Path for debugging (e.g., ["pipeline", "validate_email"])
type Processor[T any] struct {
	fn   func(context.Context, T) (T, *Error[T])
	name Name
}

// Process implements the Chainable interface, allowing individual processors
// to be used directly or composed in connectors.
//
// This means a single Processor can be used anywhere a Chainable is expected:
//
//	validator := pipz.Apply("validate", validateFunc)
//	// Can be used directly
//	result, err := validator.Process(ctx, data)
//	// Or in connectors
//	pipeline := pipz.NewTimeout("validation", validator, time.Second)
func (p Processor[T]) Process(ctx context.Context, data T) (T, *Error[T]) {
	return p.fn(ctx, data)
}

// Name returns the name of the processor for debugging and error reporting.
func (p Processor[T]) Name() Name {
	return p.name
}

// Cloner is an interface for types that can create deep copies of themselves.
// It is a type-safe alternative to reflection-based copying; no connector in this
// package requires it.
//
// The Clone method must return a deep copy where modifications to the clone
// do not affect the original value. For types containing pointers, slices, or maps,
// ensure these are also copied to achieve true isolation between concurrent processors.
//
// Example implementation:
//
//	type Order struct {
//	    ID       string
//	    Items    []Item
//	    Status   string
//	    Metadata map[string]string
//	}
//
//	func (o Order) Clone() Order {
//	    // Deep copy slice
//	    items := make([]Item, len(o.Items))
//	    copy(items, o.Items)
//
//	    // Deep copy map
//	    metadata := make(map[string]string, len(o.Metadata))
//	    for k, v := range o.Metadata {
//	        metadata[k] = v
//	    }
//
//	    return Order{
//	        ID:       o.ID,
//	        Items:    items,
//	        Status:   o.Status,
//	        Metadata: metadata,
//	    }
//	}
type Cloner[T any] interface {
	Clone() T
}
