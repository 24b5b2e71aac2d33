// Package http implements the REST handlers and the Server-Sent Events
// stream.
//
// Every failure is written by respondError as
//
//	{"error": "<message>", "kind": "<kind>", "subject": "<id>"}
//
// with the status chosen by StatusFor.
package http
