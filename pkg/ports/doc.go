/*
Package ports defines the driven ports (interfaces) of the softbus core.

These interfaces decouple session lifecycle and request dispatch from the
concrete privileged transport, channel tables and policy sources, so the same
core runs in-process (memory adapters), across broker replicas (redis adapters)
or over a socket (http adapter).

# Key Interfaces

  - RemoteServer: the client's view of the privileged side.
  - TransManager: the privileged side's session and channel manager.
  - NameResolver / ChannelStore: channel id to (package, session) ownership.
  - PermissionGuard: per-caller authorization of create/open/send actions.
  - Bootstrapper: one-time subsystem initialization per package.
  - DistributedLocker: cross-replica per-channel serialization.
*/
package ports
