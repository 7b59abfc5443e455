/*
Package softbus is the client side of a session/channel fabric: an application
registers named session servers, opens sessions toward peers, exchanges data over
the channel a privileged broker binds to each session, and tears them down.

# Concept

A Client owns a session.Registry and talks to the broker through a
ports.RemoteServer. The broker (see pkg/dispatcher) authorizes every request
with the caller's transport-supplied identity before touching any channel.
Sessions move Pending -> Bound -> closed; a Bound session is bound to exactly one
proxy or udp channel.

# Usage

	trans := memory.NewTransManager()
	store := trans.Store().(*memory.Store)
	d := dispatcher.New(trans, permission.AllowAll,
		store.Resolver(domain.ChannelTypeProxy), store.Resolver(domain.ChannelTypeUDP))

	client := softbus.NewClient(dispatcher.NewStub(dispatcher.Loopback{Dispatcher: d}))

	err := client.CreateSessionServer(ctx, "com.demo", "com.demo.chat", listener)
	id, err := client.OpenSessionSync(ctx, domain.OpenRequest{...})
	defer client.CloseSession(ctx, id)

Listener callbacks are never invoked while the registry lock is held, so a
listener may call back into the Client.
*/
package softbus
