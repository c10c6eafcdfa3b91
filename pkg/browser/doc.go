// Package browser drives the registration site through Playwright.
//
// The login and submission loops never talk to Playwright directly; they use
// the small Page and Frame interfaces defined here. PlaywrightPage implements
// them on top of a real Chromium page, and package browsertest provides a
// scriptable fake for tests.
//
// # Lifecycle
//
//  1. Launcher.Initialize installs (optionally) and starts the Playwright driver
//  2. Launcher.Open launches Chromium and returns the single page of the run
//  3. Launcher.Shutdown closes the page, context, browser and driver
//
// # Events
//
// Dialogs and network responses are delivered through Page.Watch. Only one
// watcher is active at a time. Dialogs raised while nobody watches are
// accepted on a separate goroutine so the page never stalls, and responses
// are dropped.
package browser
