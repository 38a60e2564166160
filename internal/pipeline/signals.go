package pipz

import "github.com/zoobzio/capitan"

// Signal constants for pipz connector events.
// Signals follow the pattern: <connector-type>.<event>.
const (
	// CircuitBreaker signals.
	SignalCircuitBreakerOpened   capitan.Signal = "circuitbreaker.opened"
	SignalCircuitBreakerClosed   capitan.Signal = "circuitbreaker.closed"
	SignalCircuitBreakerHalfOpen capitan.Signal = "circuitbreaker.half-open"
	SignalCircuitBreakerRejected capitan.Signal = "circuitbreaker.rejected"
)

// Common field keys using capitan primitive types.
// All keys use primitive types to avoid custom struct serialization.
var (
	// Common fields.
	FieldName      = capitan.NewStringKey("name")       // Connector instance name
	FieldTimestamp = capitan.NewFloat64Key("timestamp") // Unix timestamp

	// CircuitBreaker fields.
	FieldState            = capitan.NewStringKey("state")          // Circuit state: closed/open/half-open
	FieldFailures         = capitan.NewIntKey("failures")          // Current failure count
	FieldSuccesses        = capitan.NewIntKey("successes")         // Current success count
	FieldFailureThreshold = capitan.NewIntKey("failure_threshold") // Threshold to open
	FieldSuccessThreshold = capitan.NewIntKey("success_threshold") // Threshold to close from half-open
	FieldGeneration       = capitan.NewIntKey("generation")        // Circuit generation number
)
