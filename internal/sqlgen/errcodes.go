package sqlgen

// SQLSTATE codes raised by generated trigger functions. The dynamic
// engine maps its error taxonomy onto the same classes so callers can
// treat both paths uniformly.
const (
	// CodeProtocol: the trigger fired with the wrong timing, level, or
	// operation. Always a misconfiguration.
	CodeProtocol = "09000" // triggered_action_exception

	// CodeInvalidValidity: an existing row's validity value is null,
	// empty, or not open-ended. Indicates prior corruption.
	CodeInvalidValidity = "22000" // data_exception

	// CodeNullVersion: increment-version is enabled but the stored
	// version value is null.
	CodeNullVersion = "22004" // null_value_not_allowed

	// CodeOrderingConflict: the effective timestamp does not advance the
	// existing validity interval and mitigation is disabled.
	CodeOrderingConflict = "40001" // serialization_failure
)
