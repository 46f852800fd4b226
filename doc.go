// Package gencache implements a content-addressed generation cache with
// an at-most-once execution guarantee: for any (namespace, key), the
// generation function runs at most once across every process sharing a
// cache server, no matter how many callers race for it. Results are
// immutable once published and survive server restarts.
//
// Components:
//   - Fingerprint: identity of an entry; SHA-256 over the canonically
//     serialized key, scoped by namespace.
//   - Handle[V]: single-assignment cell observing one generation. Settles
//     exactly once with a value, a GeneratorError, a PanicError or a
//     CacheError.
//   - provider.Provider: connection to a cache server speaking the
//     Get/Heartbeat/Set protocol (in-process or HTTP).
//   - server.Server: the authority. Serializes assignment per entry,
//     expires abandoned work via leases, persists payloads through a
//     store.EntryStore and fronts reads with an optional hotcache.
//   - codec.Codec[V]: (de)serializes V <-> payload bytes.
//
// Generation pattern:
//
//	h, _ := gencache.Generate(c, "thumbnails", photoID, renderThumb)
//	v, err := h.Wait(ctx)   // at most one process ran renderThumb
//
// Fallible generators cache their declared errors too:
//
//	h, _ := gencache.GenerateErr(c, "geocode", addr, lookupAddr)
//	if _, err := h.Wait(ctx); gencache.IsGeneratorError(err) {
//		// lookupAddr failed once; the failure is the cached result
//	}
package gencache
