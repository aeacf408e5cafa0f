// Package internal holds token material helpers shared by the root package
// and its subpackages. Nothing here is part of the public API.
package internal
