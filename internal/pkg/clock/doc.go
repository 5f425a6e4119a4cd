// Package clock provides a tiny time abstraction.
//
// Code that makes expiry decisions depends on Clocker rather than calling
// time.Now directly, so tests can pin the clock with Fixed and step it across
// boundaries deterministically.
package clock
