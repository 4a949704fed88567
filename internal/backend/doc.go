// Package backend forwards client requests to a selected backend instance.
// It applies the forward timeout, tags outbound calls with a request ID and
// maps transport failures to ConnectionError. Response bodies are relayed as
// opaque JSON, never interpreted.
package backend
