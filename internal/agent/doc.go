// Package agent runs chat turns: it resolves the model and agent, prepares
// the request with the agent's tools, and drives the multi-step stream until
// the model stops calling tools.
package agent
