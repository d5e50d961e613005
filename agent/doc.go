// Package agent implements the three agent kinds that cooperate on a
// research session: the orchestrator driving the iteration loop, researchers
// executing bounded search and analysis cycles, and the synthesizer turning
// accumulated findings into structured reports.
//
// All agents embed BaseAgent for lifecycle, status and progress handling and
// exchange typed payloads over the message fabric. Model responses are
// treated as untrusted text; every parse failure has a defined fallback so a
// malformed response degrades the result instead of aborting the session.
package agent
