// Package session runs one repository preview end to end.
//
// A Session owns a booted sandbox instance, the session log (an
// events.Bus), the in-memory repository tree and the preview address. Run
// drives the pipeline:
//
//	booting -> fetching-tree -> converting -> mounting -> installing -> starting -> ready
//
// Any step can move the session to failed, which is terminal. A failed
// dependency install is only a warning; the dev server is started anyway.
//
// # Preview Binding
//
// The sandbox reports a listening dev server through OnServerReady.
// BindPreview composes the address, appends a server-ready event to the log
// and stores it; a later binding replaces it and nothing clears it. Use
// WaitReady to block until an address is bound, or Changed to be notified
// of every change.
//
// # Teardown
//
// Close unsubscribes from the sandbox, closes shells and the session log
// and tears the instance down. Manager.Restart closes the active session
// and creates a fresh one for the same repository.
package session
