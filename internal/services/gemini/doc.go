// Package gemini adapts the Google GenAI SDK to the text and media
// generation capabilities used elsewhere in scriptlab.
//
// A single Client serves three roles: one-shot text generation for the
// planner, streamed text for the advisory chat, and image generation for
// asset slots. Generated images arrive as inline bytes and are written to the
// media store so slots always hold a URL.
package gemini
