// Package service implements the item operations of the dashboard on top of
// the connection registry, the resource type catalog and the stats cache.
//
// Well known types are accessed with client-go's typed clients when the
// cluster stores them in the version the clients speak; all other types,
// custom resources included, go through the dynamic client. Listings are
// sorted by namespace and name and mapped with items.Mapper.
//
// WatchItems turns an API server watch into ItemEvents. Added events carry
// the item's index in the sorted listing so that clients can insert it in
// place. A broken watch is reopened from its last resource version; an
// expired version forces a fresh listing.
//
// Read operations degrade to absent results and mutations report a bool,
// with failures logged.
package service
