package rpc

import (
	"net/http"
)

const codeNetInvalidParams = -32040

type netInfoResult struct {
	Network     string `json:"network"`
	NativeAsset string `json:"nativeAsset"`
	Time        int64  `json:"time"`
	EventHead   int64  `json:"eventHead"`
	Streams     int    `json:"streams"`
}

func (s *Server) handleNetInfo(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 0 {
		return nil, newError(http.StatusBadRequest, codeNetInvalidParams, "invalid_params", "net_info takes no parameters")
	}
	result := netInfoResult{
		Network:     s.node.NetworkName(),
		NativeAsset: s.node.NativeAsset(),
		Time:        s.node.Now(),
	}
	if s.journal != nil {
		head, err := s.journal.Head(r.Context())
		if err != nil {
			return nil, newError(http.StatusServiceUnavailable, codeServerError, "unavailable", err.Error())
		}
		result.EventHead = head
	}
	if s.feed != nil {
		result.Streams = s.feed.Subscribers()
	}
	return result, nil
}
