// Package sensor implements the device protocol of the glucose sensor: tag
// interface command frames, per-device key derivation, radio payload
// decryption, decoding of tag memory and radio payloads, and the trailing
// reading window.
//
// Everything in this package is pure and safe for concurrent use. Transport
// I/O lives in the nfc and ble packages; sequencing lives in session.
package sensor
