// Package hubble sends and receives Hubble BLE beacon advertisements.
//
// A Beacon turns short payloads into encrypted, authenticated frames
// whose device ID and keys rotate daily. A Listener decodes received
// advertisements for every registered device, tolerating clock drift
// between beacon and receiver, and hands sightings to a Sink.
//
// Subpackages:
//   - crypto: key derivation and the AES-CTR/CMAC frame cipher
//   - protocol: frame and advertising data encoding
//   - scan: drift-tolerant frame decoding for one master key
//   - sequence, clock: sender-side state
//   - keystore, discovery, config: key provisioning and registry
//   - capture, relay: sighting batches and their transport to a collector
package hubble
