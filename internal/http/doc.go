// Package http exposes the scheduler over a JSON API routed with gorilla/mux.
//
// The router exposes the following endpoints:
//   - POST /bookings, GET /bookings, GET/PATCH/DELETE /bookings/{id}: booking
//     management exchanging the `bookingDTO` payload defined in booking_handler.go.
//     GET /bookings accepts `status` (comma separated), `resource_id`,
//     `assigned_user_id`, `from` and `until` (RFC3339) filters.
//   - POST /bookings/{id}/resources, DELETE /bookings/{id}/resources/{attachmentID}:
//     attach and detach secondary resources.
//   - POST /resources, GET /resources?kind=, GET/PUT/DELETE /resources/{id},
//     POST /resources/{id}/usage, POST /resources/{id}/stock: the resource
//     catalog exchanging the `resourceDTO` payload defined in resource_handler.go.
//   - GET /templates/{id}/preview: renders a template with sample values; any
//     query parameter overrides the sample value of the same name.
//   - POST /jobs/{name}/run: runs a periodic job now, or joins the run in progress.
//   - GET /healthz: liveness including a datastore ping.
//
// The acting user is read from the `X-Actor` header and recorded in the audit
// trail. Requests without it act as `system`.
//
// Failures are rendered as `errorResponse`: validation 422, conflict 409,
// not found 404, job runner unavailable 503, anything else 500.
package http
