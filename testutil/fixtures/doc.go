// Package fixtures provides shopping cart domain events for tests of both engines.
package fixtures
