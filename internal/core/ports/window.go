package ports

import "net/url"

// AuthorizationWindow is a popup opened on an external authorization
// provider. The session store polls it until the provider redirects back
// with an authorization code, or the user closes the window.
type AuthorizationWindow interface {
	// Location reports the window's current URL. While the window is still
	// on the external origin the location is unreadable; implementations
	// signal that with an error, which pollers must swallow and retry.
	Location() (*url.URL, error)
	// Closed reports whether the user has closed the window.
	Closed() bool
	// Close closes the window after a code was extracted.
	Close()
}
