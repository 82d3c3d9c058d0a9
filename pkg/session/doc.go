/*
Package session implements the per-connection cryptographic context
established once at the start of every vaultline connection: a fresh
nonce, an optional RSA keypair for encrypting credentials in transit,
and the single SESSION line exchanged before any command flows.
*/
package session
