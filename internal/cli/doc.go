// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// layers flags over the config file and environment, runs the selected
// command against an app.App and prints its results.
package cli
