// Package testsupport holds helpers shared by package tests: temp-dir backed
// configs, an opened device store with cleanup, and file fixtures.
package testsupport
