// Package discovery defines the registry of devices a receiver holds
// keys for.
package discovery

import (
	"errors"

	"github.com/google/uuid"

	"github.com/hubblenetwork/hubble-go/hubble/identity"
)

var (
	ErrNotFound   = errors.New("discovery: device not found")
	ErrInvalidKey = errors.New("discovery: device has no master key")
)

// Device is a provisioned beacon. ID is the backend identifier; the
// over-the-air device ID rotates daily and is never stored.
type Device struct {
	ID     uuid.UUID
	Name   string
	Key    identity.MasterKey
	Labels map[string]string
}

// Resolver is a device registry. Implementations can be backed by a
// backend API, a local database, or memory.
type Resolver interface {
	Register(d Device) error
	Lookup(id uuid.UUID) (Device, error)
	Remove(id uuid.UUID) error
	List() ([]Device, error)
}

// NewDevice returns a device with a fresh random ID.
func NewDevice(name string, key identity.MasterKey) Device {
	return Device{ID: uuid.New(), Name: name, Key: key}
}
