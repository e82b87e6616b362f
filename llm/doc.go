// Package llm provides the model providers behind the heartbeat executor.
//
// A Provider takes a system prompt, a short conversation, and optionally a
// tool the model may call (the executor offers send_message so the model
// can decide to speak or stay silent). Three providers back the per-user
// model selector: Anthropic, OpenAI, and Google Gemini. The Factory
// infers the vendor from the model name and caches one provider per
// model.
//
// All providers retry rate-limit and server errors with exponential
// backoff; billing errors fail immediately.
package llm
