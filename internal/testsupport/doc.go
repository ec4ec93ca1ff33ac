// Package testsupport holds helpers shared by package tests: temp-dir
// configs, an opened store, and scripted fakes for the text, streaming and
// media capabilities.
package testsupport
