// Package validator validates request and use case structs.
//
// Use cases depend on the Validator interface. The go-playground v10
// implementation translates failures into a field -> message map keyed by
// snake_case names, and adds the otpidentity (email or E.164 phone) and phone
// rules used by the OTP module.
package validator
