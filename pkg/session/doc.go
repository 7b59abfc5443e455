/*
Package session implements the client-side session registry.

A Registry owns every session server and live session of one client. All
mutations are serialized behind a single mutex so that concurrent opens of the
same (session name, peer session name, peer device id) tuple collapse onto one
entry: the first caller inserts a Pending session, later callers observe it
through the dedup path.

Waiting for a Pending session to bind never holds the registry lock; each
session carries a ready channel that is closed once it binds or is removed.
*/
package session
