/*
Package wireline implements the line-oriented text protocol shared by
every vaultline connection: newline-terminated frames, POSIX-locale
argument formatting, and quote-aware parsing of command and result
lines.

A frame is one of two shapes:

	<id> <NAME> <key>=<value> ...      // command
	<id> <completed 0|1> <errorCode> <payload>   // result

Framer owns the byte-level read/write side of one net.Conn (or any
io.ReadWriteCloser); FormatCommand/FormatResultPayload format outbound
lines and Classify/ParseCommand/ParseResult classify and parse inbound
ones. None of these knows about sessions, correlation, or
dispatch — those live in pkg/session and pkg/serverio.
*/
package wireline
