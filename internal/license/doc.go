// Package license issues and verifies OdooMaster licenses offline.
//
// # Formats
//
// A v2 bundle is a JSON object
//
//	{v, license_id, plan, issued_to, hardware_id, expires_at, issued_at, nonce, sig}
//
// where sig is base64 RSA-PSS (SHA-256, MGF1-SHA256) over the canonical
// bytes of every other field. Canonical bytes are produced by Canonicalize.
//
// The legacy format is base64("hwid:expiry:hmac16") with an HMAC keyed by a
// secret that ships with every installation. It is accepted only while no
// public key is configured, or when the operator opts in.
//
// # Verification
//
// Verifier runs these checks in order and stops at the first failure:
//
//  1. structure       v == 2                     UnsupportedVersion
//  2. signature       sig present, base64        MissingSignature
//  3. key             public key configured      NoPublicKey
//  4. signature       RSA-PSS verifies           BadSignature
//  5. hardware        empty or equals device     WrongDevice
//  6. expiry          expires_at not in the past Expired
//  7. revocation      id and device not listed   Revoked
//
// The outcome is a Result value. Verification never returns an error.
//
// # Local state
//
// Store keeps the raw license next to the executable and verifies it again
// on every Load, so expiry and revocation are always current.
package license
