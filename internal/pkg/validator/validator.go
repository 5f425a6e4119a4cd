package validator

// Validator validates request and use case input structs.
type Validator interface {
	Validate(data any) error
}
