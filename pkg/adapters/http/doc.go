/*
Package http carries the privileged session RPC over HTTP.

The daemon side is Server: every dispatcher operation is a POST to
/v1/ipc/{op} whose body is the JSON form of an ipc.Parcel, answered by the
reply Parcel. Channel events are streamed per session name as server-sent
events on /v1/events.

The caller identity handed to the dispatcher is taken from the connection,
never from the request: on a unix socket the kernel's peer credentials are
used; any other connection is domain.UnknownOrigin.

RemoteClient is the application side. It implements dispatcher.Transport, so
dispatcher.NewStub(client) yields a ports.RemoteServer for softbus.NewClient,
and its Events stream feeds Client.Deliver.
*/
package http
