// Package app wires the licensing daemon and runs it.
//
// Initialization order:
//
//  1. Load configuration (defaults, YAML overlay, ODOMASTER_* environment)
//  2. Initialize the slog logger and OpenTelemetry providers
//  3. Load key material: the private key makes this an issuing server and
//     opens the SQLite ledger; the public key enables bundle verification
//  4. Build the verifier, revocation registry, local license store and
//     the license service on top of them
//  5. Mount the chi router and create the http.Server
//
// Serve runs the server and the runtime metric collector in an errgroup and
// shuts both down when its context ends:
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
package app
