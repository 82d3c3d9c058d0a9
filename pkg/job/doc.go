/*
Package job implements the worker-side job state machine from spec
§4.8: None → Waiting → Running → {Done, Error, Aborted}, with transient
Request* sub-states that return to Running.
*/
package job
