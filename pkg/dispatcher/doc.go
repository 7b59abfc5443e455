/*
Package dispatcher implements the privileged side of the session RPC.

Each handler decodes its request fail-fast, resolves the owner of the target
(session name or channel id), asks the PermissionGuard with the caller's
transport-supplied Origin, and only then forwards to the TransManager.
Whatever happens, exactly one int32 is pushed to the reply: a domain.ResultCode,
or for a successful open the new channel id.

Close requests switch over the closed channel-type enum; proxy and udp ids are
resolved by separate NameResolvers and unknown types are rejected without a
permission check.
*/
package dispatcher
