package orchestrator

// RefusalText is returned verbatim when a provider's safety system declines
// the content. Safety blocks are terminal: the content, not the vendor,
// triggered the refusal, so shopping the request across providers is wrong.
const RefusalText = "I can't help with that request. It was declined by the provider's safety system."

// OfflineText is the deterministic response returned once the whole failover
// ladder is exhausted. It names likely causes and never includes internals.
const OfflineText = `I'm currently unable to reach any AI provider. This usually means one of:

1. No API key is configured (check AI_PROVIDER and the provider key variables).
2. A network problem is preventing outbound requests.
3. All configured providers are experiencing an outage.

Your message was not lost; please try again in a moment.`
