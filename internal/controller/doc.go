// Package controller talks to physical gate controllers.
//
// Two transports exist, selected per gate by control_method:
//
//   - HTTPController calls relay endpoints on the controller's IP/port.
//   - MQTTController publishes commands on gatekeeper/command/gate/{id} and
//     waits for the matching ack on gatekeeper/ack/gate/{id}.
//
// Dispatcher routes to the right one. Nothing here retries; callers bound
// every call with a context deadline.
package controller
