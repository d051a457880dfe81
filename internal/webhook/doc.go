// Package webhook receives platform event notifications over HTTP and turns
// each one into a uniform JSON response.
//
// Every endpoint runs its own Pipeline:
//
//  1. GET returns a static health payload; methods other than POST get 405
//  2. The body is read up to the endpoint's limit (413 beyond it)
//  3. The credential is verified when a secret is configured
//  4. The body is parsed as a JSON object and its event type extracted
//  5. The event is dispatched through a read-only router.Table
//  6. A success envelope is returned and the event handed to the Sink
//
// # Verification
//
// Two schemes are supported. "hmac" compares a hex HMAC-SHA256 of the raw
// body, sent in a signature header (X-EdgeOne-Signature by default), in
// constant time. "bearer" expects "Authorization: Bearer <token>" with a
// token of 8 to 128 characters.
//
// An endpoint without a secret runs in open mode and accepts every request.
// With a secret, a failed check is logged and the request continues unless
// the endpoint is strict, in which case it is rejected with 401.
//
// # Responses
//
//	200 {"success":true,"eventType":...,"eventId":...,"result":{...},"timestamp":...}
//	400 {"error":"Bad request","message":"Invalid JSON payload","received":"<first 200 chars>"}
//	401 {"success":false,"error":"Unauthorized",...}
//	405 {"error":"Method not allowed",...}
//	413 {"success":false,"error":"Payload too large",...}
//	500 {"success":false,"error":"Internal server error",...}
//
// A handler that fails still yields 200; the result carries
// "error processing event" and the failure message.
package webhook
