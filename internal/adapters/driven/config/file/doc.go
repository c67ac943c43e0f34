// Package file provides the file-based configuration store.
//
// Configuration is read from a TOML file, then overridden by variables
// from a .env file next to it and finally by LIBRARIAN_* environment
// variables. The process environment wins over .env.
package file
