// Package agent runs the model on behalf of one user.
//
// Two entry points exist. RunHeartbeat is the periodic path: the model
// reviews the user's transcript and notes and decides, via the
// send_message tool, whether to reach out or stay silent. Respond is
// the direct path: the user wrote something and always gets a reply.
//
// Every model call is billed to the usage ledger, attributed to the
// user and the path that triggered it.
package agent
