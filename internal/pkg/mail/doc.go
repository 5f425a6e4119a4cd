// Package mail sends email through SMTP or a transactional email HTTP API
// behind the Mail interface.
package mail
