/*
Package connector implements the master-side driver of one logical
channel to a remote worker, across the lifetime of a job (spec §4.6):
connect, authenticate, transmit the job, drive it to completion, tear
it down.
*/
package connector
