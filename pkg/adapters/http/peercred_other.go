//go:build !linux

package http

import (
	"net"

	"github.com/aretw0/softbus/pkg/domain"
)

// peerOrigin is unsupported off linux; every caller is domain.UnknownOrigin.
func peerOrigin(net.Conn) (domain.Origin, bool) {
	return domain.Origin{}, false
}
