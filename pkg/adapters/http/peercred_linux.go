//go:build linux

package http

import (
	"net"

	"github.com/aretw0/softbus/pkg/domain"
	"golang.org/x/sys/unix"
)

// peerOrigin reads SO_PEERCRED of a unix socket connection.
func peerOrigin(c net.Conn) (domain.Origin, bool) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return domain.Origin{}, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return domain.Origin{}, false
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return domain.Origin{}, false
	}
	return domain.Origin{UID: int32(cred.Uid), PID: cred.Pid}, true
}
