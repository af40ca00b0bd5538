// Package cache implements the tiered cache store.
//
// Entries are addressed by (category, key) and stored under
// "<service>:<category>:<key>". The category fixes the default TTL:
//
//	request      1h
//	market_data  5m
//	analysis     30m
//	session      30m
//
// Values are wrapped in a tagged envelope recording the encoding that was
// used. JSON is tried first; values implementing encoding.BinaryMarshaler
// (time.Time among them) and values JSON cannot represent are stored as
// MessagePack. Decoding dispatches on the tag and never guesses.
//
// A failing backend degrades to cache-miss behaviour: Get reports a miss,
// Set reports false, and the failure is logged.
package cache
