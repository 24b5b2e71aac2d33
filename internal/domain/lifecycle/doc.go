/*
Package lifecycle starts, stops and destroys environments.

Each environment gets a supervisor goroutine that owns its live process.
Start, stop, destroy and exit notices for that environment are messages on
the supervisor's channel, so they are applied one at a time and in order.
A process exit is observed by a watcher goroutine that only enqueues a
notice; the supervisor ignores notices for processes it no longer holds.

Launchers turn an environment record into a process spec:

	qemu         qemu-system-x86_64 with the staged kernel and initramfs
	shell        the configured shell on a PTY in a per-environment workspace
	code-server  the staged code-server entrypoint on a fixed host and port

Resources samples a running environment's process from /proc.

Kinds without a launcher are rejected with an unsupported_kind error.
*/
package lifecycle
