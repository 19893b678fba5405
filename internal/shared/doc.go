// Package shared holds helpers used by more than one package.
//
// The testutil subpackage provides RSA key fixtures, a fixed device
// fingerprint and a buffered slog handler for asserting on log output.
// Nothing here carries licensing logic of its own.
package shared
