package engine

// Infrastructure keys used internally by the engine.
const (
	InternalStepOutput = "__step_output"
	InternalIteration  = "__iteration"
)

// Checker registration names -- the string values that appear in YAML
// workflow files and are used as map keys in Engine.checkers.
const (
	CheckerNameDefault      = "default"
	CheckerNameValueInRange = "value_in_range"
	CheckerNameValueBits    = "value_bits"
	CheckerNameTextContains = "text_contains"
)
