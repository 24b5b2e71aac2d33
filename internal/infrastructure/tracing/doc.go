/*
Package tracing propagates request identifiers.

Every HTTP request receives an X-Request-ID (caller supplied, or a ULID with
the "req_" prefix). The identifier is stored on the request context, echoed
in the response, and attached to the request log line. Background work
started from a request, such as an asynchronous acquisition, carries the
identifier forward through EnsureRequestID so its log lines can be joined
with the triggering request.

	router.Use(tracing.HTTPMiddleware(logger))

	ctx, rid := tracing.EnsureRequestID(ctx)
	logger.Info("acquiring", zap.String("request_id", rid))
*/
package tracing
