// Package httpapi exposes the authentication service over REST. It
// translates HTTP semantics (JSON bodies, bearer headers, refresh cookies)
// into Service calls and maps service errors onto the documented status and
// code pairs. It makes no authentication decisions of its own.
package httpapi
