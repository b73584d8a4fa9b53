package server

import "github.com/dotside-studios/cgm-agent/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_cgm-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

const apiV1 = "/api/v1"
