package domain

import "errors"

// ResultCode is the int32 status carried in every dispatcher reply.
type ResultCode int32

const (
	CodeOK                    ResultCode = 0
	CodeErr                   ResultCode = -1
	CodeInvalidParam          ResultCode = -998
	CodePermissionDenied      ResultCode = -986
	CodeNotFound              ResultCode = -980
	CodeNameRepeated          ResultCode = -975
	CodeSessionRepeated       ResultCode = -974
	CodeRemoteFailure         ResultCode = -970
	CodeTimeout               ResultCode = -962
	CodeInvalidChannelID      ResultCode = -950
	CodeInvalidUDPChannelID   ResultCode = -949
	CodeInvalidCloseChannelID ResultCode = -948
	CodeServerLimit           ResultCode = -940
	CodeSessionLimit          ResultCode = -939
	CodeChannelBound          ResultCode = -938
)

var codeTable = []struct {
	code ResultCode
	err  error
}{
	{CodeInvalidParam, ErrInvalidParam},
	{CodePermissionDenied, ErrPermissionDenied},
	{CodeNotFound, ErrNotFound},
	{CodeNameRepeated, ErrNameRepeated},
	{CodeSessionRepeated, ErrSessionRepeated},
	{CodeRemoteFailure, ErrRemoteFailure},
	{CodeTimeout, ErrTimeout},
	{CodeInvalidChannelID, ErrInvalidChannelID},
	{CodeInvalidUDPChannelID, ErrInvalidUDPChannelID},
	{CodeInvalidCloseChannelID, ErrInvalidCloseChannelID},
	{CodeServerLimit, ErrServerLimit},
	{CodeSessionLimit, ErrSessionLimit},
	{CodeChannelBound, ErrChannelBound},
}

// CodeOf maps err onto its wire code. Unknown errors map to CodeErr.
func CodeOf(err error) ResultCode {
	if err == nil {
		return CodeOK
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeErr
}

// ErrorOf maps a wire code back onto its sentinel. Unknown non-zero codes map to ErrRemoteFailure.
func ErrorOf(code ResultCode) error {
	if code == CodeOK {
		return nil
	}
	for _, e := range codeTable {
		if e.code == code {
			return e.err
		}
	}
	return ErrRemoteFailure
}
