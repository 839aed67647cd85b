// Package providers contains the upstream vendor adapters.
//
// Every adapter speaks the normalized OpenAI chat-completions shape on
// the gateway side and translates to/from the vendor wire format. All
// adapters share a single HTTP outcome classification: transport
// failures, 401, quota statuses (402/403/429), generic HTTP errors and
// non-object JSON bodies each map to a fixed error kind, update the
// provider's credential health and leave a call trace.
package providers
