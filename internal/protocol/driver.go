package protocol

import (
	"errors"
	"sync"
)

// ErrNoDriver is returned by NewDialer when no protocol driver has been
// registered.
var ErrNoDriver = errors.New("protocol: no driver registered")

var (
	driverMu sync.Mutex
	driver   func() Dialer
)

// RegisterDriver installs the concrete connection factory, in the manner of
// database/sql drivers: the driver package calls this from an init function
// and the rest of the system stays decoupled from the wire implementation.
func RegisterDriver(factory func() Dialer) {
	driverMu.Lock()
	defer driverMu.Unlock()
	driver = factory
}

// NewDialer returns a Dialer from the registered driver.
func NewDialer() (Dialer, error) {
	driverMu.Lock()
	defer driverMu.Unlock()
	if driver == nil {
		return nil, ErrNoDriver
	}
	return driver(), nil
}
