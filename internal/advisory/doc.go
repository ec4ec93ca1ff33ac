// Package advisory implements the chat side channel that can propose plan
// changes while a session is live.
//
// A turn streams model prose as text events. When the model proposes a
// change it ends its reply with a fenced content_update block; the block is
// decoded into a merge.Update and emitted as one content_update event after
// the prose. Events travel as server-sent frames (data: <json>) and are
// consumed by a Dispatcher that routes each event type to its own handler,
// so prose never reaches the merge engine.
package advisory
