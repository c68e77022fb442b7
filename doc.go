// Package refcache serves slowly-changing reference data (states, skills, status
// codes, zip codes, ...) through a cache-aside store shared by every process,
// with a process-local mirror for the hottest domains.
//
// Components:
//   - Provider: byte store with TTL (Redis in production; ristretto, bigcache or
//     the in-memory provider for single-node hosts and tests).
//   - Codec: (de)serializes a domain list <-> []byte. JSON by default.
//   - GenStore: per-domain write generation. Administrative writes bump it so an
//     in-flight load never overwrites them.
//   - Store: GetOrCreate / Replace / Exists / Invalidate on the shared provider.
//   - Mirror + Warmer: local copy of selected domains, kept warm in the background.
//   - Facade: GetOrLoad / Refresh / Exists, the API page code uses.
//
// Keys:
//
//	<prefix><DomainName>  - one entry per domain, value = serialized list
//
// Usage:
//
//	f, _ := refcache.New(refcache.Options{Provider: p})
//	refcache.MirrorDomain(f, refcache.Zips, loadZips)
//	f.Start(ctx)
//	zips, err := refcache.GetOrLoad(ctx, f, refcache.Zips, loadZips)
package refcache
