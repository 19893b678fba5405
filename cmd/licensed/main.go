// Command licensed serves the licensing HTTP API: issuance and revocation
// for the vendor, verification and local activation for installations.
package main

import (
	"log/slog"
	"os"

	"odoomaster/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		application.Logger.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
