/*
Package domain contains the core types of the softbus session core.

It is kept free of I/O and of any transport detail, following the same
Hexagonal Architecture split as the rest of the module: ports declare what the
core needs, adapters provide it.

# Key Entities

  - SessionServer: a registered (package, session name, listener) triple.
  - Session: a logical session to a peer, moving Pending -> Bound -> Closed.
  - ChannelBinding: the (channel id, channel type) pair a Session is carried on.
  - Origin: the trusted caller identity the privileged side authorizes.
  - ResultCode: the int32 status every privileged reply carries.
*/
package domain
