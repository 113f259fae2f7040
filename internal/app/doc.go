// Package app assembles the protected application shell: config,
// logging, metrics, license verification and the HTTP router.
package app
