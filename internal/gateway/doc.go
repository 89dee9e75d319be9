// Package gateway is the typed boundary to the external completion service.
//
// The Completer interface is what the orchestrator consumes: one call in,
// one assistant message out - either terminal content or a batch of
// requested tool invocations. OpenAIGateway implements it with the official
// SDK, including model listing and fine-tuning job submission for the
// fine-tune export flow.
package gateway
