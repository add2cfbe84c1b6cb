package compiler

// ambientGlobals are the names a runtime provides without declaration:
// the ECMAScript standard library plus the common browser and Node.js hosts.
var ambientGlobals = []string{
	// ECMAScript
	"globalThis", "undefined", "NaN", "Infinity", "arguments", "eval",
	"isFinite", "isNaN", "parseFloat", "parseInt",
	"decodeURI", "decodeURIComponent", "encodeURI", "encodeURIComponent", "escape", "unescape",
	"Object", "Function", "Boolean", "Symbol", "Number", "BigInt", "Math", "Date", "String", "RegExp",
	"Array", "Int8Array", "Uint8Array", "Uint8ClampedArray", "Int16Array", "Uint16Array",
	"Int32Array", "Uint32Array", "Float32Array", "Float64Array", "BigInt64Array", "BigUint64Array",
	"Map", "Set", "WeakMap", "WeakSet", "WeakRef", "FinalizationRegistry",
	"ArrayBuffer", "SharedArrayBuffer", "DataView", "Atomics", "JSON", "Promise", "Proxy", "Reflect", "Intl",
	"Error", "AggregateError", "EvalError", "RangeError", "ReferenceError", "SyntaxError", "TypeError", "URIError",

	// Hosts
	"console", "window", "self", "document", "navigator", "location", "history",
	"setTimeout", "clearTimeout", "setInterval", "clearInterval", "setImmediate", "clearImmediate",
	"queueMicrotask", "structuredClone", "requestAnimationFrame", "cancelAnimationFrame",
	"fetch", "Request", "Response", "Headers", "URL", "URLSearchParams", "AbortController", "AbortSignal",
	"TextEncoder", "TextDecoder", "Blob", "File", "FormData", "Event", "EventTarget", "CustomEvent",
	"atob", "btoa", "crypto", "performance", "localStorage", "sessionStorage", "alert", "confirm", "prompt",
	"HTMLElement", "Element", "Node", "WebSocket", "Worker", "XMLHttpRequest",
	"process", "Buffer", "require", "module", "exports", "__dirname", "__filename", "global",
}

func defaultGlobals() map[string]bool {
	globals := make(map[string]bool, len(ambientGlobals))
	for _, g := range ambientGlobals {
		globals[g] = true
	}
	return globals
}
