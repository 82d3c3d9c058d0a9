/*
Package security implements the credential handling spec §4.4 specifies
plus file-based TLS certificate material management for the optional
TLS upgrade path (spec §4.5).

# Credential decode/verify

DecodePassword undoes the wire encoding a connector applies via
EncodeCredential: hex-decode, optionally RSA-decrypt under the
session's private key, then XOR against the session nonce up to the
first zero byte. VerifyPassword hashes the decoded plaintext and
compares it against a stored SHA-256 hash in constant time.

SecureBuffer holds decoded plaintext outside of a normal Go string so
it can be explicitly zeroed once a caller is done with it; a finalizer
is a safety net for callers that forget.

# Certificate material

GetCertDir/GetCLICertDir/SaveCertToFile/LoadCertFromFile/CertExists and
related helpers manage certificate and key material on disk in PEM
form, independent of any certificate authority — this module expects
operators to provide certificate material from whatever authority they
already run, not to mint its own.
*/
package security
