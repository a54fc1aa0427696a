// Package rpc implements the RPC Binding Layer (Component F): transport-
// agnostic wire names and request/response shapes for one plugin server
// instance, plus a Binder that dispatches a dotted op name against an
// *server.Server. Concrete transports (internal/transport/httptransport,
// wstransport, natstransport) adapt these to a specific wire protocol.
package rpc

import "strings"

// MethodOp derives the dotted wire name for a method call:
// plugin.<name>.methods.<m>.
func MethodOp(plugin, method string) string {
	return "plugin." + plugin + ".methods." + method
}

// EventsEmitOp derives plugin.<name>.events.emit.
func EventsEmitOp(plugin string) string {
	return "plugin." + plugin + ".events.emit"
}

// EventsSubscribeOp derives plugin.<name>.events.subscribe.
func EventsSubscribeOp(plugin string) string {
	return "plugin." + plugin + ".events.subscribe"
}

// EventsUnsubscribeOp derives plugin.<name>.events.unsubscribe.
func EventsUnsubscribeOp(plugin string) string {
	return "plugin." + plugin + ".events.unsubscribe"
}

// EventsCallbackOp derives plugin.<name>.events.callback, the server-push
// op carrying a remote listener's matched event.
func EventsCallbackOp(plugin string) string {
	return "plugin." + plugin + ".events.callback"
}

// ContextGetOp derives plugin.<name>.context.get.
func ContextGetOp(plugin string) string {
	return "plugin." + plugin + ".context.get"
}

// ContextChangedOp derives plugin.<name>.context.changed, the server-push
// op carrying a context mutation.
func ContextChangedOp(plugin string) string {
	return "plugin." + plugin + ".context.changed"
}

// ParseMethodOp extracts (plugin, method) from a plugin.<name>.methods.<m>
// wire name; ok is false for any other shape.
func ParseMethodOp(op string) (plugin, method string, ok bool) {
	parts := strings.SplitN(op, ".", 4)
	if len(parts) != 4 || parts[0] != "plugin" || parts[2] != "methods" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// ParseOp splits any plugin.<name>.<rest...> wire name into the plugin
// name and the remaining dotted group/op (e.g. "events.emit",
// "context.get", "methods.send").
func ParseOp(op string) (plugin, rest string, ok bool) {
	parts := strings.SplitN(op, ".", 3)
	if len(parts) != 3 || parts[0] != "plugin" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
