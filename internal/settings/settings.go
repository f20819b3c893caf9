package settings

import "fmt"

const CmdName = "xprof"

// CurrentSession is the session directory samples are recorded to.
const CurrentSession = "current"

var (
	PidFile    = fmt.Sprintf("/tmp/%s.pid", CmdName)
	LogFile    = fmt.Sprintf("/tmp/%s.log", CmdName)
	SocketPath = fmt.Sprintf("/tmp/%s.sock", CmdName)
	SamplesDir = fmt.Sprintf("/var/lib/%s/samples", CmdName)
	ConfigFile = fmt.Sprintf("/etc/%s/config.yaml", CmdName)
)
