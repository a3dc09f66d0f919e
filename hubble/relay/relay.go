// Package relay carries sighting batches from gateways to a collector over
// QUIC.
//
// A gateway dials the collector, opens a single stream and sends a hello
// naming itself and presenting the relay token. It then writes
// length-prefixed capture batches; the collector answers each with a
// one-byte acknowledgement once its handler has accepted the batch.
package relay
