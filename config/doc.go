// Package config reads the EVENTLOG_* environment variables and builds database pools and
// event stores from them, for the replay CLI and for integration tests.
package config
