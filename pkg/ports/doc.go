/*
Package ports defines the driven and driving ports of the call-flow engine.

These interfaces decouple the runtime from storage backends, from the
natural-language collaborators and from the transports that expose it.

# Key Interfaces

  - Judge: decides whether a natural-language transition condition holds.
  - Extractor: captures variable values from the conversation.
  - FlowRepository: fetches and replaces the flow of an agent.
  - StateStore: persists call snapshots.
  - DistributedLocker: serialises access to a call across replicas.
  - FlowService, CallService: what the HTTP and MCP adapters drive.
*/
package ports
