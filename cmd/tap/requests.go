package main

import "github.com/tap-run/tap/internal/control"

func stopRequestFrom(graceMS int64) control.StopRequest {
	req := control.StopRequest{}
	if graceMS > 0 {
		req.GraceMS = &graceMS
	}
	return req
}
