// Package testdoubles provides spies for the eventstore observability interfaces.
//
// All spies are safe for concurrent use and copy what they capture, so tests can inspect records
// while readers keep running.
package testdoubles
