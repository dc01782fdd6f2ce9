// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "pitchd/internal/log"
)

// LoggingTransport writes every message to the debug log as JSON. It is
// the fallback when no network transport is configured.
type LoggingTransport struct{}

// Compile-time checks for interface implementations.
var _ Transport = (*LoggingTransport)(nil)

func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send never fails. Messages are only encoded when debug logging is on.
func (lt *LoggingTransport) Send(data any) error {
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("LoggingTransport: %T %+v (marshal error: %v)", data, data, err)
		return nil
	}
	applog.Debugf("LoggingTransport: %s", encoded)
	return nil
}

func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called")
	return nil
}
