// Package testsupport provides shared helpers for package tests: temp-dir
// configs with fast intervals and a pre-opened job store.
package testsupport
