/*
Package resilience provides per-host circuit breakers.

A circuit opens after Threshold consecutive failures for its key and rejects
calls with ErrCircuitOpen until Cooldown has passed. The next call is a
trial: success closes the circuit, failure reopens it.

# Usage

	breakers := resilience.NewBreakers(resilience.Settings{Threshold: 3})
	err := breakers.Execute(host, func() error {
		return probe(host)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// skip the host for now
	}
*/
package resilience
