package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"odoomaster/pkg/contracts/domain"
)

// readLicenseInput returns the license text from --license or the file argument
func readLicenseInput(text string, args []string) (string, error) {
	switch {
	case text != "" && len(args) > 0:
		return "", fmt.Errorf("pass either a file or --license, not both")
	case text != "":
		return text, nil
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read license file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("a license file or --license is required")
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeResult(w io.Writer, res domain.VerificationResult) {
	status := res.Code
	if res.OK {
		status = "valid"
	}
	fmt.Fprintf(w, "Status:          %s\n", status)
	fmt.Fprintf(w, "Message:         %s\n", res.Reason)
	writeField(w, "Format:          %s\n", string(res.Format))
	writeField(w, "License ID:      %s\n", res.LicenseID)
	writeField(w, "Plan:            %s\n", res.Plan)
	writeField(w, "Issued to:       %s\n", res.IssuedTo)
	writeField(w, "Hardware ID:     %s\n", res.HardwareID)
	writeField(w, "Expires:         %s\n", res.ExpiresAt)
	if res.OK {
		if res.IsLifetime {
			fmt.Fprintf(w, "Days remaining:  %d (lifetime)\n", res.DaysRemaining)
		} else {
			fmt.Fprintf(w, "Days remaining:  %d\n", res.DaysRemaining)
		}
	}
}

func writeField(w io.Writer, format, value string) {
	if value != "" {
		fmt.Fprintf(w, format, value)
	}
}
