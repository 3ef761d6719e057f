package crawler

import "errors"

// Fatal run errors. Either one aborts a run with a Failed summary.
var (
	// ErrBrowserUnavailable means the shared browser session could not start.
	ErrBrowserUnavailable = errors.New("browser session unavailable")
	// ErrDestinationUnusable means the destination directory cannot be
	// created or written.
	ErrDestinationUnusable = errors.New("destination directory unusable")
	// ErrNoPage is returned by browser-driven adapters invoked without a page.
	ErrNoPage = errors.New("no browser page available")
)
