package weights

import (
	"errors"
	"fmt"
	"sync"

	"gorgonia.org/tensor"
)

// CPU is the host device. Weight vectors are created there.
const CPU = "cpu"

// ErrUnknownDevice is returned when no Mover is registered for a device name.
var ErrUnknownDevice = errors.New("unknown device")

// Mover relocates a weight vector to a compute device.
type Mover interface {
	Move(t *tensor.Dense) (*tensor.Dense, error)
}

// MoverFunc adapts a function to Mover.
type MoverFunc func(t *tensor.Dense) (*tensor.Dense, error)

// Move implements Mover.
func (f MoverFunc) Move(t *tensor.Dense) (*tensor.Dense, error) { return f(t) }

var (
	moversMu sync.RWMutex
	movers   = map[string]Mover{}
)

// RegisterDevice installs the Mover used for device. Registering CPU is not allowed.
func RegisterDevice(device string, m Mover) error {
	if device == "" || device == CPU {
		return fmt.Errorf("weights: cannot register device %q", device)
	}
	if m == nil {
		return fmt.Errorf("weights: nil mover for device %q", device)
	}
	moversMu.Lock()
	defer moversMu.Unlock()
	movers[device] = m
	return nil
}

// UnregisterDevice removes the Mover for device, if any.
func UnregisterDevice(device string) {
	moversMu.Lock()
	defer moversMu.Unlock()
	delete(movers, device)
}

// ToDevice places t on device. The empty name and CPU leave t where it is.
func ToDevice(t *tensor.Dense, device string) (*tensor.Dense, error) {
	if device == "" || device == CPU || t == nil {
		return t, nil
	}
	moversMu.RLock()
	m, ok := movers[device]
	moversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("weights: %w: %q", ErrUnknownDevice, device)
	}
	return m.Move(t)
}

// Supported reports whether ToDevice can place vectors on device.
func Supported(device string) bool {
	if device == "" || device == CPU {
		return true
	}
	moversMu.RLock()
	defer moversMu.RUnlock()
	_, ok := movers[device]
	return ok
}
