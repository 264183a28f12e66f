/*
Package webhook builds and executes the HTTP calls made by function nodes.

A body_template is detected structurally. A JSON object with "type": "object"
and a "properties" map is a schema: the body takes one bound variable per
declared property, and invocation is blocked while any is missing. Anything
else is a string with {{name}} placeholders, substituted once and sent as JSON
when the result parses, or as raw text otherwise.

The Invoker is shared by the design-time test endpoint and the runtime, so a
successful test predicts the runtime behaviour.
*/
package webhook
