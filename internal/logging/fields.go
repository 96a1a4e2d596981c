package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType labels notable daemon events for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries operator guidance for resolving a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the operational consequence of a warning or error.
	FieldImpact = "impact"
	// FieldSessionKey is the standardized structured logging key for session identifiers.
	FieldSessionKey = "session_key"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldDevice is the standardized structured logging key for device node paths.
	FieldDevice = "device"
)
