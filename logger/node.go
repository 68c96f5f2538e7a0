package logger

import "fmt"

// NodeLogger tags every line with the node it belongs to, so the log buffer
// can attribute it ("[nodeID] message").
type NodeLogger struct {
	nodeID string
}

// ForNode returns a logger scoped to one node
func ForNode(nodeID string) *NodeLogger {
	return &NodeLogger{nodeID: nodeID}
}

func (n *NodeLogger) line(format string, args ...interface{}) string {
	return fmt.Sprintf("[%s] %s", n.nodeID, fmt.Sprintf(format, args...))
}

func (n *NodeLogger) Debugf(format string, args ...interface{}) {
	Debugf("%s", n.line(format, args...))
}

func (n *NodeLogger) Infof(format string, args ...interface{}) {
	Infof("%s", n.line(format, args...))
}

func (n *NodeLogger) Warnf(format string, args ...interface{}) {
	Warnf("%s", n.line(format, args...))
}

func (n *NodeLogger) Errorf(format string, args ...interface{}) {
	Errorf("%s", n.line(format, args...))
}
