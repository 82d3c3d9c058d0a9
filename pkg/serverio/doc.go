/*
Package serverio implements ServerIO (spec §4.5): the component that
owns one full-duplex connection, multiplexes outbound commands from any
number of local issuers onto it, and delivers inbound lines either to a
dispatcher (commands, via GetCommand) or to a specific waiter (results,
via WaitResult/ExecuteCommand).

There is exactly one reader goroutine per ServerIO, started by New,
which owns the wireline.Framer's read side and performs classification.
Nothing else reads from the connection.
*/
package serverio
