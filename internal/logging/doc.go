// Package logging provides file-based logging with rotation for the
// cortex runtime. Logs are written as JSON to ~/.whytcard/logs/; the serve
// command always logs there, at info level by default and at debug level
// when the --debug flag is set.
//
// Copying log output to stderr is optional (Config.WriteToStderr). In
// stdio tool-server mode, stderr is disabled entirely (see SetupStdioMode)
// since the protocol stream owns stdout and stray writes corrupt it.
package logging
