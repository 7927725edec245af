// Package api exposes the REST surface of the orchestration core: creating
// tasks, dispatching them to agents, and feeding analysis text into the
// task manager.
package api
