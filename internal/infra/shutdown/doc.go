// Package shutdown provides graceful shutdown for lime-server.
//
// Components register hooks as they start; on SIGINT, SIGTERM or context
// cancellation the hooks run in reverse registration order under a shared
// timeout, so the last component started is the first stopped.
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown("tcp listener", listener.Close)
//	err := h.Wait(ctx)
package shutdown
