// Package config provides configuration for the licensing engine and its
// daemon. Values are resolved once at startup and handed to constructors;
// nothing below this package reads the environment.
//
// # Configuration Sources
//
// In order of increasing precedence:
//
//  1. Default()
//  2. YAML file ($ODOMASTER_CONFIG, ./config.yaml or ./configs/config.yaml)
//  3. Environment variables (ODOMASTER_*)
//
// # Environment Variables
//
//	ODOMASTER_SERVER_PORT=8090
//	ODOMASTER_SECURITY_ADMIN_API_KEY=...
//	ODOMASTER_LICENSE_PUBLIC_KEY_PEM="-----BEGIN PUBLIC KEY-----..."
//	ODOMASTER_LICENSE_PRIVATE_KEY_FILE=/secure/license_private_key.pem
//	ODOMASTER_LICENSE_ALLOW_LEGACY=true
//	ODOMASTER_LOGGING_LEVEL=debug
//
// # Path Management
//
// Local license state lives next to the executable unless
// ODOMASTER_LICENSE_BASE_DIR says otherwise; see PathsFor.
package config
