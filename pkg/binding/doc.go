/*
Package binding implements the channel binding table shared by both sides of
the privileged boundary.

The client keeps one Table to route inbound channel events to session ids.
The privileged side keeps one Table per transport to resolve a channel id back
to the (package, session name) pair it authorizes against.
*/
package binding
