// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the lifecycle around a built graph: property
// snapshots, the async event relay, watch mode and the health check, all
// decoupled from any specific entrypoint like a CLI.
package app
