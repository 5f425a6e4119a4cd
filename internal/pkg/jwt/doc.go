// Package jwt issues and verifies the HS512 token handed out after a
// successful OTP verification.
package jwt
