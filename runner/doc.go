/*
Package runner executes an ordered sequence of named store operations against
a single live connection.

The Runner owns the connection for the duration of a run: it verifies the
connection before the first operation, executes every step strictly in order
(each remote call is awaited to completion before the next begins), and
releases the connection exactly once on every exit path, including failures
and the empty sequence.

Two failure policies are supported. Under PolicyFailFast (the default) the
first failed operation aborts the remaining steps. Under PolicyBestEffort
every step is attempted and all failures are joined into the run error.
In both modes every outcome is recorded with the Bundle's Reporter; no
failure is silently swallowed.
*/
package runner
