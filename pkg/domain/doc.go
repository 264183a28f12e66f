/*
Package domain contains the core model of a voice-agent call flow.

It defines the node type system, the transition strategies, the variable
extraction rules and the snapshot of a running call. The package holds no I/O
and no persistence; adapters and the runtime build on top of it.

# Key Entities

  - Flow: the authored graph of one agent, rooted at its single start node.
  - Node: an {id, kind, label, data} envelope whose Data is one struct per NodeKind.
  - TransitionStrategy: Fixed, AfterAnyResponse or Conditional. A node has exactly one.
  - ExtractVariableSpec: a rule for capturing a named value from the conversation.
  - SessionState: the persisted snapshot of one call.
  - ActionRequest: what the host should say, collect or do next.
*/
package domain
