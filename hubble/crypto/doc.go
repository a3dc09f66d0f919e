// Package crypto implements the Hubble BLE key schedule and message cipher.
//
// Building blocks:
//   - Key derivation via NIST SP 800-108 counter mode with AES-CMAC as PRF
//   - Daily key rotation: every key is a function of the master key and a day counter
//   - AES-CTR encryption with a 4-byte truncated AES-CMAC tag over the ciphertext
//   - Constant-time tag comparison
//
// Every function here is pure and safe for concurrent use. Nothing is cached
// between calls, so a day boundary can never leave a stale key behind.
package crypto
