// Package integration contains the Integration bounded context.
// This context manages the external customer-data sources a tenant connects.
//
// Key concepts:
//   - Connector: Port interface for one source (intercom, helpscout, segment)
//     implementing bulk pull and webhook push ingestion
//   - ImporterConfig: Entity pairing a tenant with a connected source; holds
//     credentials, the webhook secret, settings and the sync watermark
//   - Event: Tagged union of decoded webhook payloads with an UnknownEvent variant
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
