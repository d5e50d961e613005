// Package core defines the shared vocabulary of the researchmesh framework:
// agent identity and state, the inter-agent message envelope with its typed
// payload kinds, the research data model (plans, findings, syntheses,
// sessions), the lifecycle event sum type consumed by external observers, and
// the error taxonomy used across components.
//
// core has no behavior beyond small helpers; components in fabric, agent,
// registry and session depend on it, never the other way around.
package core
