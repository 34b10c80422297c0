// Package replay contains the Cobra command that replays the event log as JSON lines.
package replay
