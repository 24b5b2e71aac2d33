/*
Package fetch downloads component artifacts with a bounded retry policy.

Each attempt streams into "<dest>.part" and is renamed onto dest only after
the whole body arrived, so dest never holds a truncated artifact and its
presence alone marks a finished download. Failed attempts delete the part
file and wait BackoffBase doubled per retry (capped at BackoffMax, and
honouring Retry-After on 429/503) before the next one.

Timeouts per attempt:

  - ConnectTimeout bounds dial and TLS handshake.
  - ReadTimeout bounds the wait for response headers and any idle gap
    between body reads.
  - TransferTimeout is the wall-clock ceiling for one attempt.

Once MaxAttempts attempts failed the returned error satisfies
errors.Is(err, ErrExhausted) and carries the kind of the last cause.
*/
package fetch
