// Package crawl implements the resilient crawl-session controller: it owns
// the agent session lifecycle, pagination, termination detection, failure
// recovery, and per-page extraction for a single crawl target. Concrete
// browser wiring lives in internal/agent; this package consumes it only
// through the Agent and PageAccessor interfaces.
package crawl
