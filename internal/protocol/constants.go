// Package protocol defines constants used across the protocol.
package protocol

// ServerSite is the site ID reserved for the server itself; real
// connections are assigned 1, 2, 3, ... by the hub's allocator.
const ServerSite uint16 = 0
