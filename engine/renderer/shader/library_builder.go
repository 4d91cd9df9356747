package shader

// LibraryBuilderOption is a functional option for configuring a Library during NewLibrary.
type LibraryBuilderOption func(*library)

// WithOnReload registers a callback invoked with the new template each time a loaded template's
// sources change on disk. The callback runs on the watcher goroutine.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - LibraryBuilderOption: a function that applies the callback to the library
func WithOnReload(fn func(*Template)) LibraryBuilderOption {
	return func(l *library) {
		l.onReload = fn
	}
}
