// Package model defines the completion engine contract consumed by the
// research agents, together with vendor adapters in the anthropic and openai
// subpackages. The core treats engine output as untrusted text; structured
// payload extraction happens at the call sites.
package model
