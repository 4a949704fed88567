// Package admin exposes pool management over HTTP: an HTML status page with
// add/remove forms, a JSON instance listing, and the add/remove endpoints.
// Each endpoint translates directly to a registry operation. Malformed input
// is ignored and the client is sent back to the status page.
package admin
