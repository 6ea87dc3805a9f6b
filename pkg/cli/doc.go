// Package cli provides the apimock command-line interface.
//
// Commands:
//   - serve: run the interception gate in front of the management API
//   - validate: check a config file without starting anything
//   - init: write a starter config file
//   - version: print build information
//
// Settings resolve as flag > APIMOCK_* environment > config file > default.
//
// Usage:
//
//	apimock serve --config apimock.yaml --port 9090
//	apimock validate -c apimock.yaml
//	apimock init --interactive
package cli
