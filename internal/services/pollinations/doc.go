// Package pollinations generates images through the keyless Pollinations
// endpoint, where the prompt is part of the request path and the response
// body is the image itself.
package pollinations
