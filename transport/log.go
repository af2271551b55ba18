package transport

import "github.com/go-i2p/logger"

// log provides the default logger instance for the transport package.
var log = logger.GetGoI2PLogger()
