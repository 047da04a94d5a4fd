package device

import "sync"

// ErrorSink latches the first error reported against a device instance.
// Subsequent errors are recorded in the log but never overwrite the
// latched value; callers observe a single, stable failure reason for the
// lifetime of the device.
type ErrorSink struct {
	mu    sync.Mutex
	first error
}

// Latch records err as the device's error if no error has been latched
// yet. It reports whether this call was the one that latched the error.
func (s *ErrorSink) Latch(err error) bool {
	if err == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.first != nil {
		deviceLogger.Warningf("%v", err)
		return false
	}
	s.first = err
	return true
}

// Err returns the latched error, or nil if the device has not failed.
func (s *ErrorSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}

// Failed reports whether an error has been latched.
func (s *ErrorSink) Failed() bool {
	return s.Err() != nil
}
