// Package bot is the message ingress and admin command layer.
//
// Inbound text either starts with the "..." command prefix and is
// handled locally (status, pause, resume, interval, heartbeat, note,
// notes) or goes to the assistant for a model-generated reply. Every
// inbound message registers the user if needed and stamps last_seen.
//
// Command handlers persist config changes through the store and then
// update the scheduler, in that order, so durable state is the source
// of truth after a restart.
package bot
