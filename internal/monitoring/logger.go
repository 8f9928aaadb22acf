// Package monitoring holds the diagnostic logger shared by the core packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can mute or capture core decisions.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Vesself prefixes a diagnostic line with the component and vessel it
// concerns, e.g. "[passage] 265123000: confirmed at klaffbron".
func Vesself(component, vesselID, format string, v ...interface{}) {
	Logf("["+component+"] "+vesselID+": "+format, v...)
}
